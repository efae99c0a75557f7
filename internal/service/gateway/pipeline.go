// Package gateway 受治理的模型调用流水线
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/service/persistence"
	"github.com/ashwinyue/llm-governance/internal/service/provider"
	"github.com/ashwinyue/llm-governance/internal/service/telemetry"
)

// Executor 网关调用能力，评委与评估编排依赖此接口
type Executor interface {
	Execute(ctx context.Context, req *Request) (*provider.Response, error)
}

// Pipeline 网关流水线
type Pipeline struct {
	registry   *provider.Registry
	prompts    PromptResolver
	guardrails Guardrail
	cost       CostCalculator
	telemetry  telemetry.Recorder
	logs       persistence.Logger
	validate   *validator.Validate
	log        zerolog.Logger
	now        func() time.Time
}

// Option 流水线可选项
type Option func(*Pipeline)

// WithPromptResolver 设置提示词解析
func WithPromptResolver(r PromptResolver) Option {
	return func(p *Pipeline) { p.prompts = r }
}

// WithGuardrail 设置输入输出钩子
func WithGuardrail(g Guardrail) Option {
	return func(p *Pipeline) { p.guardrails = g }
}

// WithClock 替换时钟，测试中使用
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline 创建网关流水线
func NewPipeline(
	registry *provider.Registry,
	cost CostCalculator,
	rec telemetry.Recorder,
	logs persistence.Logger,
	log zerolog.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		registry:  registry,
		cost:      cost,
		telemetry: telemetry.Safe(rec, log),
		logs:      logs,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       log.With().Str("component", "gateway").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// callState 单次调用在各步骤间累积的信息，用于收尾记录
type callState struct {
	requestID     string
	env           string
	provider      string
	model         string
	promptID      string
	promptVersion string
	tokensIn      float64
	tokensOut     float64
	// resolved 供应商已在注册表中找到，之前的失败不以请求中的名称打指标标签
	resolved bool
}

// UnknownLabel 供应商未解析时的指标标签
const UnknownLabel = "unknown"

// Execute 执行一次受治理的调用
// 失败时返回 *ValidationError 或 *ProviderError；无论成败都恰好记录一次指标和日志
func (p *Pipeline) Execute(ctx context.Context, req *Request) (resp *provider.Response, err error) {
	start := p.now()
	if req == nil {
		req = &Request{}
	}
	st := &callState{
		requestID: req.RequestID,
		env:       req.Env,
		provider:  req.Config.Provider,
		model:     req.Config.Model,
		promptID:  req.PromptID,
	}
	if st.requestID == "" {
		st.requestID = uuid.New().String()
	}
	if st.env == "" {
		st.env = DefaultEnv
	}
	if st.provider == "" {
		st.provider = DefaultProvider
	}
	if st.model == "" {
		st.model = DefaultModel
	}

	ctx, span := telemetry.Tracer().Start(ctx, "gateway.execute", trace.WithAttributes(
		attribute.String("llm.request_id", st.requestID),
		attribute.String("llm.env", st.env),
		attribute.String("llm.provider", st.provider),
		attribute.String("llm.model", st.model),
	))

	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &ProviderError{Code: CodeInternal, Provider: st.provider, Message: fmt.Sprintf("panic: %v", r)}
		}
		telemetry.RecordSpanError(span, err)
		span.End()
		p.finalize(ctx, req, st, start, err)
	}()

	return p.execute(ctx, req, st)
}

// Reject 记录一次未能解码的请求并返回对应的 *ValidationError
// 与 Execute 相同，恰好记录一次指标和 status=error 的请求日志
func (p *Pipeline) Reject(ctx context.Context, requestID string, cause error) error {
	st := &callState{
		requestID: requestID,
		env:       DefaultEnv,
		provider:  DefaultProvider,
		model:     DefaultModel,
	}
	if st.requestID == "" {
		st.requestID = uuid.New().String()
	}
	err := &ValidationError{Code: CodeValidation, Message: "malformed request body", Err: cause}
	p.finalize(ctx, &Request{RequestID: st.requestID}, st, p.now(), err)
	return err
}

func (p *Pipeline) execute(ctx context.Context, req *Request, st *callState) (*provider.Response, error) {
	// 1. 校验
	if err := p.validate.StructCtx(ctx, req); err != nil {
		return nil, toValidationError(err)
	}

	// 2. 解析供应商，未知名称不回退
	prov, err := p.registry.Get(st.provider)
	if err != nil {
		return nil, &ValidationError{
			Code:    CodeUnknownProvider,
			Message: fmt.Sprintf("provider '%s' not found", st.provider),
			Err:     err,
		}
	}
	st.resolved = true

	// 3. 输入钩子
	input := req.Input
	if p.guardrails != nil {
		sub, err := p.guardInput(ctx, req)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			input = *sub
		}
	}

	// 4. 构建消息
	messages, err := p.buildMessages(ctx, req, input, st)
	if err != nil {
		return nil, err
	}

	// 5. 预估输入 token
	st.tokensIn = EstimateTokens(messages)

	// 6. 调用供应商
	resp, err := p.generate(ctx, prov, messages, provider.Options{Model: st.model, Params: req.Config.Params}, st)
	if err != nil {
		return nil, err
	}

	// 7. 以上报用量为准
	st.tokensOut = float64(len(resp.Content)) / 4
	if u := resp.Usage; u != nil {
		if u.PromptTokens > 0 {
			st.tokensIn = float64(u.PromptTokens)
		}
		if u.CompletionTokens > 0 {
			st.tokensOut = float64(u.CompletionTokens)
		}
	}

	// 8. 输出钩子
	if p.guardrails != nil {
		out, err := p.guardOutput(ctx, req, resp)
		if err != nil {
			return nil, err
		}
		if out != nil {
			resp = out
		}
	}
	return resp, nil
}

func (p *Pipeline) guardInput(ctx context.Context, req *Request) (*Input, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "guardrails.input")
	defer span.End()

	sub, err := p.guardrails.ExecuteInput(ctx, req)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, asValidation(err, CodeGuardrailRejected, "input rejected by guardrail")
	}
	return sub, nil
}

func (p *Pipeline) guardOutput(ctx context.Context, req *Request, resp *provider.Response) (*provider.Response, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "guardrails.output")
	defer span.End()

	out, err := p.guardrails.ExecuteOutput(ctx, req, resp)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, asValidation(err, CodeGuardrailRejected, "output rejected by guardrail")
	}
	return out, nil
}

func (p *Pipeline) buildMessages(ctx context.Context, req *Request, input Input, st *callState) ([]provider.Message, error) {
	switch {
	case req.PromptID != "":
		return p.resolvePrompt(ctx, req.PromptID, input, st)
	case len(input.Messages) > 0:
		return input.Messages, nil
	case input.Text != "":
		return []provider.Message{{Role: provider.RoleUser, Content: input.Text}}, nil
	default:
		return nil, &ValidationError{
			Code:    CodeEmptyInput,
			Message: `input must contain "text", "messages", or "prompt_id"`,
		}
	}
}

func (p *Pipeline) resolvePrompt(ctx context.Context, promptID string, input Input, st *callState) ([]provider.Message, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "prompt.resolve", trace.WithAttributes(
		attribute.String("llm.prompt_id", promptID),
	))
	defer span.End()

	if p.prompts == nil {
		err := &ValidationError{Code: CodePromptUnresolved, Message: "prompt registry not configured"}
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	resolved, err := p.prompts.GetPrompt(ctx, promptID, st.env)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, &ValidationError{
			Code:    CodePromptUnresolved,
			Message: fmt.Sprintf("failed to resolve prompt '%s'", promptID),
			Err:     err,
		}
	}
	st.promptVersion = resolved.Version
	span.SetAttributes(attribute.String("llm.prompt_version", resolved.Version))

	content := Render(resolved.Template, input.Vars())
	return []provider.Message{{Role: provider.RoleUser, Content: content}}, nil
}

func (p *Pipeline) generate(ctx context.Context, prov provider.Provider, messages []provider.Message, opts provider.Options, st *callState) (resp *provider.Response, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "llm.generate")
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &ProviderError{Code: CodeProviderError, Provider: st.provider, Message: fmt.Sprintf("panic: %v", r)}
		}
		telemetry.RecordSpanError(span, err)
		span.End()
	}()

	resp, err = prov.Generate(ctx, messages, opts)
	if err != nil {
		return nil, &ProviderError{Code: CodeProviderError, Provider: st.provider, Message: "generation failed", Err: err}
	}
	if resp == nil {
		return nil, &ProviderError{Code: CodeProviderError, Provider: st.provider, Message: "empty response"}
	}
	if resp.Provider == "" {
		resp.Provider = st.provider
	}
	if resp.Model == "" {
		resp.Model = st.model
	}
	return resp, nil
}

// finalize 记录成本、指标与请求日志，自身故障不会外溢
func (p *Pipeline) finalize(ctx context.Context, req *Request, st *callState, start time.Time, callErr error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("request_id", st.requestID).Msg("finalize failed")
		}
	}()

	latency := p.now().Sub(start).Milliseconds()
	status := model.RequestStatusSuccess
	var code, message string
	if callErr != nil {
		status = model.RequestStatusError
		code = ErrorCode(callErr)
		if code == "" {
			code = CodeInternal
		}
		message = callErr.Error()
	}

	cost := 0.0
	if p.cost != nil {
		cost = p.cost.Cost(st.provider, st.model, st.tokensIn, st.tokensOut)
	}

	providerLabel, modelLabel := st.provider, st.model
	if !st.resolved {
		providerLabel, modelLabel = UnknownLabel, UnknownLabel
	}
	p.telemetry.RecordRequest(telemetry.RequestMetrics{
		Env:       st.env,
		Provider:  providerLabel,
		Model:     modelLabel,
		Status:    string(status),
		ErrorCode: code,
		LatencyMs: latency,
		TokensIn:  int(math.Round(st.tokensIn)),
		TokensOut: int(math.Round(st.tokensOut)),
		CostUSD:   cost,
	})

	if p.logs != nil {
		p.logs.LogRequest(ctx, &model.RequestLog{
			RequestID:     st.requestID,
			Timestamp:     p.now().UTC(),
			Env:           st.env,
			Provider:      st.provider,
			Model:         st.model,
			PromptID:      st.promptID,
			PromptVersion: st.promptVersion,
			LatencyMs:     latency,
			TokensIn:      int(math.Round(st.tokensIn)),
			TokensOut:     int(math.Round(st.tokensOut)),
			CostUSD:       cost,
			Status:        status,
			ErrorCode:     code,
			ErrorMessage:  message,
			Metadata:      req.Metadata,
		})
	}

	ev := p.log.Debug()
	if callErr != nil {
		ev = p.log.Warn().Err(callErr).Str("error_code", code)
	}
	ev.Str("request_id", st.requestID).
		Str("provider", st.provider).
		Str("model", st.model).
		Int64("latency_ms", latency).
		Msg("gateway request finished")
}

func toValidationError(err error) *ValidationError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{Field: fe.Namespace(), Tag: fe.Tag(), Param: fe.Param()})
		}
		return &ValidationError{Code: CodeValidation, Message: "invalid request schema", Details: details}
	}
	return &ValidationError{Code: CodeValidation, Message: "invalid request schema", Err: err}
}
