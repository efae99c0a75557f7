package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/ashwinyue/llm-governance/internal/service/provider"
)

// 默认值
const (
	DefaultProvider = "openai"
	DefaultModel    = "gpt-3.5-turbo"
	DefaultEnv      = "prod"
)

// Request 受治理的模型调用请求
type Request struct {
	RequestID string         `json:"request_id,omitempty" validate:"omitempty,max=128"`
	PromptID  string         `json:"prompt_id,omitempty" validate:"omitempty,max=255"`
	Input     Input          `json:"input"`
	Config    Config         `json:"config"`
	Env       string         `json:"env,omitempty" validate:"omitempty,max=32"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Config 供应商与模型选择
type Config struct {
	Provider string         `json:"provider,omitempty" validate:"omitempty,max=64"`
	Model    string         `json:"model,omitempty" validate:"omitempty,max=128"`
	Params   map[string]any `json:"params,omitempty"`
}

// Input 请求输入：text、messages 或提示词变量
// input 下的所有键都可作为模板变量
type Input struct {
	Text      string             `json:"text,omitempty"`
	Messages  []provider.Message `json:"messages,omitempty" validate:"omitempty,dive"`
	Variables map[string]any     `json:"-"`
}

// TextInput 单条文本输入
func TextInput(text string) Input {
	return Input{Text: text}
}

// VariablesInput 仅提供模板变量
func VariablesInput(vars map[string]any) Input {
	in := Input{Variables: vars}
	if s, ok := vars["text"].(string); ok {
		in.Text = s
	}
	return in
}

// Vars 模板替换使用的变量
func (in Input) Vars() map[string]any {
	vars := make(map[string]any, len(in.Variables)+1)
	for k, v := range in.Variables {
		vars[k] = v
	}
	if _, ok := vars["text"]; !ok && in.Text != "" {
		vars["text"] = in.Text
	}
	return vars
}

// UnmarshalJSON 保留全部键作为变量，同时解析 text 与 messages
func (in *Input) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Input{Variables: raw}
	if s, ok := raw["text"].(string); ok {
		out.Text = s
	}
	if m, ok := raw["messages"]; ok && m != nil {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(b, &out.Messages); err != nil {
			return fmt.Errorf("input.messages: %w", err)
		}
	}
	*in = out
	return nil
}

// MarshalJSON 与 UnmarshalJSON 对称
func (in Input) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(in.Variables)+2)
	for k, v := range in.Variables {
		out[k] = v
	}
	if in.Text != "" {
		out["text"] = in.Text
	}
	if in.Messages != nil {
		out["messages"] = in.Messages
	}
	return json.Marshal(out)
}

// ResolvedPrompt 按环境解析出的提示词版本
type ResolvedPrompt struct {
	PromptID string         `json:"prompt_id"`
	Template string         `json:"template"`
	Version  string         `json:"version"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
