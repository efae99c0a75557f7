// Package testutil 提供测试辅助工具
package testutil

import (
	"context"
	"strconv"
	"sync"

	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/service/provider"
	"github.com/ashwinyue/llm-governance/internal/service/telemetry"
)

// MockCall 记录一次 Generate 调用
type MockCall struct {
	Messages []provider.Message
	Options  provider.Options
}

// MockProvider 可编排响应的供应商
type MockProvider struct {
	mu      sync.Mutex
	calls   []MockCall
	Respond func(messages []provider.Message, opts provider.Options) (*provider.Response, error)
}

// NewMockProvider 返回固定内容与用量
func NewMockProvider(content string, usage *provider.Usage) *MockProvider {
	return &MockProvider{
		Respond: func([]provider.Message, provider.Options) (*provider.Response, error) {
			var u *provider.Usage
			if usage != nil {
				cp := *usage
				u = &cp
			}
			return &provider.Response{Content: content, Usage: u}, nil
		},
	}
}

// NewFailingProvider 始终返回错误
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Respond: func([]provider.Message, provider.Options) (*provider.Response, error) {
			return nil, err
		},
	}
}

// NewSequenceProvider 依次返回给定内容，用完后重复最后一个
func NewSequenceProvider(contents ...string) *MockProvider {
	m := &MockProvider{}
	m.Respond = func([]provider.Message, provider.Options) (*provider.Response, error) {
		idx := m.CallCount() - 1
		if idx >= len(contents) {
			idx = len(contents) - 1
		}
		return &provider.Response{Content: contents[idx]}, nil
	}
	return m
}

// Generate 实现 provider.Provider
func (m *MockProvider) Generate(ctx context.Context, messages []provider.Message, opts provider.Options) (*provider.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Messages: messages, Options: opts})
	m.mu.Unlock()
	return m.Respond(messages, opts)
}

// CallCount 调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls 全部调用
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// LastCall 最后一次调用
func (m *MockProvider) LastCall() MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return MockCall{}
	}
	return m.calls[len(m.calls)-1]
}

// RecordingTelemetry 记录所有指标
type RecordingTelemetry struct {
	mu          sync.Mutex
	Requests    []telemetry.RequestMetrics
	Evaluations []telemetry.EvaluationMetrics
}

func (r *RecordingTelemetry) RecordRequest(m telemetry.RequestMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Requests = append(r.Requests, m)
}

func (r *RecordingTelemetry) RecordEvaluation(m telemetry.EvaluationMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Evaluations = append(r.Evaluations, m)
}

// EvaluationSnapshot 返回评估指标副本
func (r *RecordingTelemetry) EvaluationSnapshot() []telemetry.EvaluationMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]telemetry.EvaluationMetrics(nil), r.Evaluations...)
}

// RequestSnapshot 返回请求指标副本
func (r *RecordingTelemetry) RequestSnapshot() []telemetry.RequestMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]telemetry.RequestMetrics(nil), r.Requests...)
}

// RecordingLogs 记录提交的请求日志
type RecordingLogs struct {
	mu   sync.Mutex
	logs []*model.RequestLog
}

// LogRequest 实现 persistence.Logger
func (r *RecordingLogs) LogRequest(ctx context.Context, entry *model.RequestLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
}

// Logs 已记录的日志
func (r *RecordingLogs) Logs() []*model.RequestLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.RequestLog(nil), r.logs...)
}

// Last 最后一条日志
func (r *RecordingLogs) Last() *model.RequestLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.logs) == 0 {
		return nil
	}
	return r.logs[len(r.logs)-1]
}

// ZeroCost 成本恒为 0
type ZeroCost struct{}

func (ZeroCost) Cost(string, string, float64, float64) float64 { return 0 }

// JudgeJSON 构造评委响应文本
func JudgeJSON(overall float64) string {
	return `Here is my evaluation: {"relevance": 4, "accuracy": 4, "clarity": 4, "hallucination_risk": 1, "overall_score": ` +
		strconv.FormatFloat(overall, 'f', -1, 64) + `, "reasoning": "looks fine"}`
}
