// Package provider 定义模型供应商能力接口与注册表
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrProviderNotFound 未注册的供应商
var ErrProviderNotFound = errors.New("provider not found")

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 对话消息
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// Options 单次调用参数
type Options struct {
	Model  string
	Params map[string]any
}

// Usage token 用量，均为非负数
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response 供应商响应
type Response struct {
	Content  string         `json:"content"`
	Usage    *Usage         `json:"usage,omitempty"`
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Provider 模型供应商能力
type Provider interface {
	Generate(ctx context.Context, messages []Message, opts Options) (*Response, error)
}

// ProviderFunc 函数适配器
type ProviderFunc func(ctx context.Context, messages []Message, opts Options) (*Response, error)

// Generate 实现 Provider
func (f ProviderFunc) Generate(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	return f(ctx, messages, opts)
}

// Registry 名称到供应商的映射，构建完成后只读
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register 注册供应商，同名覆盖
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get 获取供应商
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Names 已注册的供应商名称，按字母排序
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
