// Package judge 多评委打分
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ashwinyue/llm-governance/internal/config"
	"github.com/ashwinyue/llm-governance/internal/service/gateway"
	"github.com/ashwinyue/llm-governance/internal/service/provider"
)

const (
	defaultDisagreementDelta = 1.0
	defaultConcurrency       = 4
	judgeEnv                 = "prod"
)

// Judge 评委使用的供应商与模型
type Judge struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// Options 单次评估的可选覆盖
type Options struct {
	Primary           *Judge
	Secondary         []Judge
	DisagreementDelta float64
}

// SecondaryResult 次评委结果
type SecondaryResult struct {
	Judge  Judge   `json:"config"`
	Result Result  `json:"result"`
	Delta  float64 `json:"delta"`
}

// SecondaryError 次评委失败记录
type SecondaryError struct {
	Judge Judge  `json:"config"`
	Error string `json:"error"`
}

// Verdict 评审结论，总分始终取主评委
type Verdict struct {
	Primary         Result            `json:"primary"`
	PrimaryJudge    Judge             `json:"primary_judge"`
	Secondary       []SecondaryResult `json:"secondary"`
	SecondaryErrors []SecondaryError  `json:"secondary_errors,omitempty"`
	Disagreement    bool              `json:"disagreement"`
	OverallScore    float64           `json:"overall_score"`
}

// Map 结论转为可存储的 map
func (v *Verdict) Map() map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"overall_score": v.OverallScore}
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// Panel 评委组
type Panel struct {
	exec        gateway.Executor
	primary     Judge
	secondary   []Judge
	delta       float64
	concurrency int
	log         zerolog.Logger
}

// NewPanel 按配置创建评委组
func NewPanel(exec gateway.Executor, cfg config.EvaluationConfig, log zerolog.Logger) *Panel {
	p := &Panel{
		exec:        exec,
		primary:     judgeFromConfig(cfg.Judges.Primary),
		delta:       cfg.Thresholds.DisagreementDelta,
		concurrency: cfg.Judges.Concurrency,
		log:         log.With().Str("component", "judge").Logger(),
	}
	for _, j := range cfg.Judges.Secondary {
		p.secondary = append(p.secondary, judgeFromConfig(j))
	}
	if p.delta <= 0 {
		p.delta = defaultDisagreementDelta
	}
	if p.concurrency <= 0 {
		p.concurrency = defaultConcurrency
	}
	return p
}

func judgeFromConfig(c config.JudgeConfig) Judge {
	return Judge{Provider: c.Provider, Model: c.Model, Params: c.Params}
}

// EvaluateWithJudges 主评委必须成功；次评委尽力而为，只用于判断分歧
func (p *Panel) EvaluateWithJudges(ctx context.Context, input any, output string, criteria any, opts Options) (*Verdict, error) {
	primary := p.primary
	if opts.Primary != nil {
		primary = *opts.Primary
	}
	secondary := p.secondary
	if opts.Secondary != nil {
		secondary = opts.Secondary
	}
	delta := p.delta
	if opts.DisagreementDelta > 0 {
		delta = opts.DisagreementDelta
	}

	prompt, err := buildPrompt(input, output, criteria)
	if err != nil {
		return nil, &JudgeError{Role: "primary", Provider: primary.Provider, Err: err}
	}

	primaryResult, err := p.runJudge(ctx, "primary", primary, prompt)
	if err != nil {
		return nil, &JudgeError{Role: "primary", Provider: primary.Provider, Err: err}
	}

	verdict := &Verdict{
		Primary:      *primaryResult,
		PrimaryJudge: primary,
		Secondary:    []SecondaryResult{},
		OverallScore: primaryResult.OverallScore,
	}
	if len(secondary) == 0 {
		return verdict, nil
	}

	results := make([]*Result, len(secondary))
	errs := make([]error, len(secondary))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, j := range secondary {
		g.Go(func() error {
			results[i], errs[i] = p.runJudge(gctx, "secondary", j, prompt)
			return nil
		})
	}
	_ = g.Wait()

	for i, j := range secondary {
		if errs[i] != nil {
			p.log.Warn().Err(errs[i]).Str("provider", j.Provider).Msg("secondary judge failed, ignoring")
			verdict.SecondaryErrors = append(verdict.SecondaryErrors, SecondaryError{Judge: j, Error: errs[i].Error()})
			continue
		}
		d := math.Abs(primaryResult.OverallScore - results[i].OverallScore)
		if d > delta {
			verdict.Disagreement = true
		}
		verdict.Secondary = append(verdict.Secondary, SecondaryResult{Judge: j, Result: *results[i], Delta: d})
	}
	return verdict, nil
}

func (p *Panel) runJudge(ctx context.Context, role string, j Judge, prompt string) (*Result, error) {
	resp, err := p.exec.Execute(ctx, &gateway.Request{
		RequestID: fmt.Sprintf("judge-%s-%s", role, uuid.NewString()),
		Input: gateway.Input{
			Messages: []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		},
		Config: gateway.Config{Provider: j.Provider, Model: j.Model, Params: j.Params},
		Env:    judgeEnv,
		Metadata: map[string]any{
			"judge_role": role,
		},
	})
	if err != nil {
		return nil, err
	}
	return ParseResult(resp.Content)
}

const rubricTemplate = `You are an impartial evaluator. Score the "Actual Output" against the "Input" and the "Evaluation Criteria" using the rubric below.

Input:
%s

Actual Output:
%s

Evaluation Criteria:
%s

Rubric:
- Relevance (1-5): does it directly answer the input?
- Accuracy (1-5): is the information correct?
- Clarity (1-5): is it easy to understand?
- Hallucination Risk (1-5): 1 = grounded, 5 = fabricated information.

Reply with a single JSON object:
{
  "relevance": <number>,
  "accuracy": <number>,
  "clarity": <number>,
  "hallucination_risk": <number>,
  "overall_score": <number>,
  "reasoning": "<short explanation>"
}`

func buildPrompt(input any, output string, criteria any) (string, error) {
	in, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode input: %w", err)
	}
	cr, err := json.MarshalIndent(criteria, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode criteria: %w", err)
	}
	return fmt.Sprintf(rubricTemplate, in, strings.TrimSpace(output), cr), nil
}
