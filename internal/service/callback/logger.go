// Package callback 将 eino 组件回调写入结构化日志
package callback

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	ecomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// Logger 日志回调处理器，实现 callbacks.Handler
type Logger struct {
	log zerolog.Logger
}

// NewLogger 创建日志回调处理器
func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Str("component", "eino").Logger()}
}

// OnStart 组件执行开始
func (l *Logger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	event := l.log.Debug()
	if !event.Enabled() {
		return ctx
	}
	event = withRunInfo(event, info)
	if in := ecomodel.ConvCallbackInput(input); in != nil {
		event = event.Int("messages", len(in.Messages))
		if in.Config != nil {
			event = event.Str("model", in.Config.Model)
		}
	}
	event.Msg("component start")
	return ctx
}

// OnEnd 组件执行成功结束，记录 token 用量
func (l *Logger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	event := l.log.Debug()
	if !event.Enabled() {
		return ctx
	}
	event = withRunInfo(event, info)
	if out := ecomodel.ConvCallbackOutput(output); out != nil {
		if out.TokenUsage != nil {
			event = event.
				Int("prompt_tokens", out.TokenUsage.PromptTokens).
				Int("completion_tokens", out.TokenUsage.CompletionTokens)
		}
		if out.Message != nil {
			event = event.Int("content_len", len(out.Message.Content))
		}
	}
	event.Msg("component end")
	return ctx
}

// OnError 组件执行出错
func (l *Logger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	withRunInfo(l.log.Warn(), info).Err(err).Msg("component error")
	return ctx
}

// OnStartWithStreamInput 流式输入不做展开
func (l *Logger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	withRunInfo(l.log.Debug(), info).Msg("component stream start")
	return ctx
}

// OnEndWithStreamOutput 流式输出不做展开
func (l *Logger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	output.Close()
	withRunInfo(l.log.Debug(), info).Msg("component stream end")
	return ctx
}

func withRunInfo(event *zerolog.Event, info *callbacks.RunInfo) *zerolog.Event {
	if info == nil {
		return event
	}
	return event.
		Str("name", info.Name).
		Str("type", info.Type).
		Str("kind", string(info.Component))
}

// SetupGlobalCallbacks 注册为全局回调，进程启动时调用一次
func SetupGlobalCallbacks(log zerolog.Logger) {
	callbacks.AppendGlobalHandlers(NewLogger(log))
}
