package gateway

import (
	"context"

	"github.com/ashwinyue/llm-governance/internal/service/provider"
)

// Guardrail 输入输出策略钩子，规则由外部实现
type Guardrail interface {
	// ExecuteInput 返回非空 Input 时替换原输入；返回错误则拒绝请求
	ExecuteInput(ctx context.Context, req *Request) (*Input, error)
	// ExecuteOutput 返回非空响应时替换原响应
	ExecuteOutput(ctx context.Context, req *Request, resp *provider.Response) (*provider.Response, error)
}

// PromptResolver 提示词解析
type PromptResolver interface {
	GetPrompt(ctx context.Context, idOrName, env string) (*ResolvedPrompt, error)
}

// CostCalculator 成本计算
type CostCalculator interface {
	Cost(provider, model string, tokensIn, tokensOut float64) float64
}
