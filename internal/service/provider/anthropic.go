package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultAnthropicMaxTokens Messages API 要求必须给出 max_tokens
const defaultAnthropicMaxTokens = 1024

// AnthropicProvider Anthropic Messages API 供应商
type AnthropicProvider struct {
	defaultModel string
	client       anthropic.Client
}

// NewAnthropicProvider 创建 Anthropic 供应商
func NewAnthropicProvider(apiKey, baseURL, defaultModel string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		defaultModel: defaultModel,
		client:       anthropic.NewClient(opts...),
	}
}

// Generate 实现 Provider
func (p *AnthropicProvider) Generate(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = p.defaultModel
	}

	params := toAnthropicParams(modelName, messages, opts.Params)
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &Response{
		Content:  sb.String(),
		Provider: "anthropic",
		Model:    modelName,
		Usage: &Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		Metadata: map[string]any{"stop_reason": string(msg.StopReason)},
	}, nil
}

func toAnthropicParams(modelName string, messages []Message, params map[string]any) anthropic.MessageNewParams {
	out := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: defaultAnthropicMaxTokens,
	}
	if v, ok := Int(params, ParamMaxTokens); ok && v > 0 {
		out.MaxTokens = int64(v)
	}
	if v, ok := Float(params, ParamTemperature); ok {
		out.Temperature = anthropic.Float(v)
	}
	if v, ok := Float(params, ParamTopP); ok {
		out.TopP = anthropic.Float(v)
	}
	if stop := Strings(params, ParamStop); len(stop) > 0 {
		out.StopSequences = stop
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out.System = append(out.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			out.Messages = append(out.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out.Messages = append(out.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}
