package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	ecomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModelProvider 基于 eino ChatModel 的供应商，适用于所有 OpenAI 兼容接口
type ChatModelProvider struct {
	name         string
	defaultModel string
	chatModel    ecomodel.BaseChatModel
}

// ChatModelConfig OpenAI 兼容接口配置
type ChatModelConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewChatModelProvider 创建 OpenAI 兼容供应商（openai, deepseek, ollama, litellm）
func NewChatModelProvider(ctx context.Context, cfg ChatModelConfig) (*ChatModelProvider, error) {
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", cfg.Name, err)
	}
	return NewChatModelProviderFrom(cfg.Name, cfg.Model, cm), nil
}

// NewChatModelProviderFrom 使用已有的 ChatModel 构建供应商
func NewChatModelProviderFrom(name, defaultModel string, cm ecomodel.BaseChatModel) *ChatModelProvider {
	return &ChatModelProvider{name: name, defaultModel: defaultModel, chatModel: cm}
}

// Generate 实现 Provider
func (p *ChatModelProvider) Generate(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = p.defaultModel
	}

	msg, err := p.chatModel.Generate(ctx, toSchemaMessages(messages), chatModelOptions(modelName, opts.Params)...)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", p.name, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%s generate: empty response", p.name)
	}

	resp := &Response{
		Content:  msg.Content,
		Provider: p.name,
		Model:    modelName,
	}
	if meta := msg.ResponseMeta; meta != nil {
		if meta.FinishReason != "" {
			resp.Metadata = map[string]any{"finish_reason": meta.FinishReason}
		}
		if meta.Usage != nil {
			resp.Usage = &Usage{
				PromptTokens:     meta.Usage.PromptTokens,
				CompletionTokens: meta.Usage.CompletionTokens,
				TotalTokens:      meta.Usage.TotalTokens,
			}
		}
	}
	return resp, nil
}

func toSchemaMessages(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		var role schema.RoleType
		switch m.Role {
		case RoleSystem:
			role = schema.System
		case RoleAssistant:
			role = schema.Assistant
		default:
			role = schema.User
		}
		out = append(out, &schema.Message{Role: role, Content: m.Content})
	}
	return out
}

func chatModelOptions(modelName string, params map[string]any) []ecomodel.Option {
	opts := []ecomodel.Option{ecomodel.WithModel(modelName)}
	if v, ok := Float(params, ParamTemperature); ok {
		opts = append(opts, ecomodel.WithTemperature(float32(v)))
	}
	if v, ok := Int(params, ParamMaxTokens); ok && v > 0 {
		opts = append(opts, ecomodel.WithMaxTokens(v))
	}
	if v, ok := Float(params, ParamTopP); ok {
		opts = append(opts, ecomodel.WithTopP(float32(v)))
	}
	if stop := Strings(params, ParamStop); len(stop) > 0 {
		opts = append(opts, ecomodel.WithStop(stop))
	}
	return opts
}
