package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider Google Gemini 供应商
type GeminiProvider struct {
	defaultModel string
	client       *genai.Client
}

// NewGeminiProvider 创建 Gemini 供应商，httpClient 为空时使用 SDK 默认客户端
func NewGeminiProvider(ctx context.Context, apiKey, defaultModel string, httpClient *http.Client) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{defaultModel: defaultModel, client: client}, nil
}

// Generate 实现 Provider
func (p *GeminiProvider) Generate(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = p.defaultModel
	}

	system, contents := toGenAIContents(messages)
	config := genAIConfig(opts.Params)
	config.SystemInstruction = system

	resp, err := p.client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	out := &Response{
		Content:  resp.Text(),
		Provider: "gemini",
		Model:    modelName,
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// toGenAIContents system 消息合并为 SystemInstruction
func toGenAIContents(messages []Message) (*genai.Content, []*genai.Content) {
	var systemParts []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			systemParts = append(systemParts, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(systemParts) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(systemParts, "\n\n"), genai.RoleUser), contents
}

func genAIConfig(params map[string]any) *genai.GenerateContentConfig {
	var config genai.GenerateContentConfig
	if v, ok := Float(params, ParamTemperature); ok {
		t := float32(v)
		config.Temperature = &t
	}
	if v, ok := Float(params, ParamTopP); ok {
		topP := float32(v)
		config.TopP = &topP
	}
	if v, ok := Int(params, ParamMaxTokens); ok && v > 0 {
		config.MaxOutputTokens = int32(v)
	}
	if stop := Strings(params, ParamStop); len(stop) > 0 {
		config.StopSequences = stop
	}
	return &config
}
