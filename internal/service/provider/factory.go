package provider

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashwinyue/llm-governance/internal/config"
)

// NewRegistryFromConfig 按配置注册所有已配置凭证的供应商
// 单个供应商初始化失败只记录日志，不影响其它供应商
func NewRegistryFromConfig(ctx context.Context, cfg config.AIConfig, log zerolog.Logger) *Registry {
	reg := NewRegistry()

	compatible := map[string]config.ProviderConfig{
		"openai":   cfg.OpenAI,
		"deepseek": cfg.DeepSeek,
		"ollama":   cfg.Ollama,
		"litellm":  cfg.LiteLLM,
	}
	for name, pc := range compatible {
		if !pc.Enabled() {
			continue
		}
		p, err := NewChatModelProvider(ctx, ChatModelConfig{
			Name:    name,
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Model:   pc.Model,
			Timeout: time.Duration(pc.Timeout) * time.Second,
		})
		if err != nil {
			log.Error().Err(err).Str("provider", name).Msg("failed to init provider")
			continue
		}
		reg.Register(name, p)
	}

	if cfg.Gemini.APIKey != "" {
		p, err := NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, nil)
		if err != nil {
			log.Error().Err(err).Str("provider", "gemini").Msg("failed to init provider")
		} else {
			reg.Register("gemini", p)
		}
	}

	if cfg.Anthropic.APIKey != "" {
		reg.Register("anthropic", NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, cfg.Anthropic.Model))
	}

	log.Info().Strs("providers", reg.Names()).Msg("providers registered")
	return reg
}
