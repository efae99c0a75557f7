package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ashwinyue/llm-governance/internal/config"
	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/queue"
	"github.com/ashwinyue/llm-governance/internal/repository"
	"github.com/ashwinyue/llm-governance/internal/service/gateway"
	"github.com/ashwinyue/llm-governance/internal/service/judge"
	"github.com/ashwinyue/llm-governance/internal/service/telemetry"
)

// ErrRunNotPending 运行已开始或已结束，重复投递的任务被拒绝
var ErrRunNotPending = errors.New("evaluation run is not pending")

const candidateEnv = "test"

// Judges 评委组能力
type Judges interface {
	EvaluateWithJudges(ctx context.Context, input any, output string, criteria any, opts judge.Options) (*judge.Verdict, error)
}

// Job 评估队列消息
type Job struct {
	RunID string `json:"run_id"`
}

// Orchestrator 评估编排：驱动运行从 pending 到 completed 或 failed
type Orchestrator struct {
	runs       repository.EvaluationRepository
	datasets   repository.DatasetRepository
	gateway    gateway.Executor
	judges     Judges
	regression *RegressionAnalyzer
	queue      queue.Queue
	queueName  string
	telemetry  telemetry.Recorder
	log        zerolog.Logger
	now        func() time.Time
}

// NewOrchestrator 创建评估编排器
func NewOrchestrator(
	cfg config.EvaluationConfig,
	runs repository.EvaluationRepository,
	datasets repository.DatasetRepository,
	exec gateway.Executor,
	judges Judges,
	q queue.Queue,
	rec telemetry.Recorder,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		runs:       runs,
		datasets:   datasets,
		gateway:    exec,
		judges:     judges,
		regression: NewRegressionAnalyzer(runs, cfg.Thresholds.RegressionPercentage),
		queue:      q,
		queueName:  cfg.QueueName,
		telemetry:  telemetry.Safe(rec, log),
		log:        log.With().Str("component", "evaluation").Logger(),
		now:        time.Now,
	}
}

// CreateRunRequest 创建评估运行请求
type CreateRunRequest struct {
	DatasetID string         `json:"dataset_id" binding:"required"`
	PromptID  string         `json:"prompt_id"`
	Config    map[string]any `json:"config"`
}

// CreateRun 为数据集创建待执行的运行并投递任务
func (o *Orchestrator) CreateRun(ctx context.Context, req *CreateRunRequest) (*model.EvaluationRun, error) {
	ds, err := o.resolveDataset(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}

	run := &model.EvaluationRun{
		DatasetID: ds.ID,
		PromptID:  req.PromptID,
		Config:    req.Config,
		Status:    model.RunStatusPending,
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create evaluation run: %w", err)
	}
	if err := o.Trigger(ctx, run.ID); err != nil {
		return run, err
	}

	o.log.Info().Str("run_id", run.ID).Str("dataset", ds.Name).Msg("evaluation run created")
	return run, nil
}

func (o *Orchestrator) resolveDataset(ctx context.Context, idOrName string) (*model.Dataset, error) {
	ds, err := o.datasets.GetByID(ctx, idOrName)
	if errors.Is(err, repository.ErrNotFound) {
		ds, err = o.datasets.GetByName(ctx, idOrName)
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", idOrName, err)
	}
	return ds, nil
}

// Trigger 将运行投递到评估队列
func (o *Orchestrator) Trigger(ctx context.Context, runID string) error {
	payload, err := json.Marshal(Job{RunID: runID})
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := o.queue.Enqueue(ctx, payload); err != nil {
		return fmt.Errorf("enqueue run %s: %w", runID, err)
	}
	return nil
}

// GetRun 获取运行
func (o *Orchestrator) GetRun(ctx context.Context, id string) (*model.EvaluationRun, error) {
	run, err := o.runs.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns 分页列出运行，datasetID 为空时不过滤
func (o *Orchestrator) ListRuns(ctx context.Context, datasetID string, page, size int) ([]*model.EvaluationRun, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	runs, err := o.runs.ListRuns(ctx, datasetID, (page-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ListResults 运行的全部用例结果
func (o *Orchestrator) ListResults(ctx context.Context, runID string) ([]*model.EvaluationResult, error) {
	results, err := o.runs.ListResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list results of run %s: %w", runID, err)
	}
	return results, nil
}

// ProcessJob 执行一次运行。进入 running 之后的任何错误都会把运行置为 failed 并返回
func (o *Orchestrator) ProcessJob(ctx context.Context, runID string) (err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "evaluation.process_job")
	defer span.End()
	span.SetAttributes(attribute.String("evaluation.run_id", runID))

	run, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if run.Status != model.RunStatusPending {
		return fmt.Errorf("run %s is %s: %w", runID, run.Status, ErrRunNotPending)
	}
	ds, err := o.datasets.GetByID(ctx, run.DatasetID)
	if err != nil {
		return fmt.Errorf("load dataset %s: %w", run.DatasetID, err)
	}
	cases, err := o.datasets.ListTestCases(ctx, ds.ID)
	if err != nil {
		return fmt.Errorf("load test cases of %s: %w", ds.Name, err)
	}

	if err := o.runs.MarkRunning(ctx, run.ID, o.now()); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return fmt.Errorf("run %s: %w", runID, ErrRunNotPending)
		}
		return fmt.Errorf("mark run %s running: %w", runID, err)
	}
	log := o.log.With().Str("run_id", run.ID).Str("dataset", ds.Name).Logger()
	log.Info().Int("test_cases", len(cases)).Msg("evaluation run started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation run %s panicked: %v", runID, r)
		}
		if err != nil {
			o.fail(ctx, run, ds, err, log)
			telemetry.RecordSpanError(span, err)
		}
	}()

	summary, err := o.execute(ctx, run, ds, cases, log)
	if err != nil {
		return err
	}

	regressed := summary.Regression != nil && summary.Regression.IsRegression
	o.telemetry.RecordEvaluation(telemetry.EvaluationMetrics{
		Dataset:           ds.Name,
		Status:            string(model.RunStatusCompleted),
		IsRegression:      regressed,
		DisagreementCount: summary.Disagreements,
		AvgScore:          summary.AvgScore,
	})
	log.Info().
		Float64("avg_score", summary.AvgScore).
		Int("disagreements", summary.Disagreements).
		Bool("regression", regressed).
		Msg("evaluation run completed")
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, run *model.EvaluationRun, ds *model.Dataset, cases []*model.TestCase, log zerolog.Logger) (*Summary, error) {
	cfg, err := candidateConfig(run.Config)
	if err != nil {
		return nil, err
	}
	opts := judge.Options{}
	if v, ok := ds.PolicyFloat(policyDisagreement); ok && v > 0 {
		opts.DisagreementDelta = v
	}

	scores := make([]CaseScore, 0, len(cases))
	for _, tc := range cases {
		result, score := o.scoreCase(ctx, run, tc, cfg, opts, log)
		if err := o.runs.CreateResult(ctx, result); err != nil {
			return nil, fmt.Errorf("save result for case %s: %w", tc.ID, err)
		}
		scores = append(scores, score)
	}

	summary := Summarize(scores)
	info, err := o.regression.Analyze(ctx, run, ds, summary.AvgScore)
	if err != nil {
		log.Warn().Err(err).Msg("regression check failed")
		summary.RegressionError = err.Error()
	}
	summary.Regression = info

	if err := o.runs.CompleteRun(ctx, run.ID, summary.AvgScore, summary.Map(), o.now()); err != nil {
		return nil, fmt.Errorf("complete run: %w", err)
	}
	return summary, nil
}

// scoreCase 候选失败或主评委失败都记 0 分，运行继续
func (o *Orchestrator) scoreCase(ctx context.Context, run *model.EvaluationRun, tc *model.TestCase, cfg gateway.Config, opts judge.Options, log zerolog.Logger) (*model.EvaluationResult, CaseScore) {
	result := &model.EvaluationResult{RunID: run.ID, TestCaseID: tc.ID}
	score := CaseScore{TestCaseID: tc.ID}

	output, err := o.candidate(ctx, run, tc, cfg)
	if err != nil {
		log.Warn().Err(err).Str("test_case_id", tc.ID).Msg("candidate failed")
		result.Output = "ERROR: " + err.Error()
		result.Error = err.Error()
		result.Reasoning = "candidate generation failed"
		result.Metrics = map[string]any{"error": "candidate generation failed"}
		score.Failed = true
		return result, score
	}
	result.Output = output

	verdict, err := o.judges.EvaluateWithJudges(ctx, map[string]any(tc.Input), output, criteria(tc), opts)
	if err != nil {
		log.Warn().Err(err).Str("test_case_id", tc.ID).Msg("judge failed")
		result.Error = err.Error()
		result.Reasoning = err.Error()
		result.Metrics = map[string]any{"error": err.Error()}
		score.Failed = true
		return result, score
	}

	result.Score = verdict.OverallScore
	result.Reasoning = verdict.Primary.Reasoning
	result.Metrics = verdict.Map()
	score.Score = verdict.OverallScore
	score.Dimensions = verdict.Primary.Dimensions()
	score.Disagreement = verdict.Disagreement
	return result, score
}

func (o *Orchestrator) candidate(ctx context.Context, run *model.EvaluationRun, tc *model.TestCase, cfg gateway.Config) (string, error) {
	input, err := candidateInput(tc.Input)
	if err != nil {
		return "", err
	}
	resp, err := o.gateway.Execute(ctx, &gateway.Request{
		RequestID: fmt.Sprintf("eval-%s-%s", run.ID, tc.ID),
		PromptID:  run.PromptID,
		Input:     input,
		Config:    cfg,
		Env:       candidateEnv,
		Metadata: map[string]any{
			"evaluation_run_id": run.ID,
			"test_case_id":      tc.ID,
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (o *Orchestrator) fail(ctx context.Context, run *model.EvaluationRun, ds *model.Dataset, cause error, log zerolog.Logger) {
	log.Error().Err(cause).Msg("evaluation run failed")
	// 调用方取消时仍需落库失败状态
	if err := o.runs.FailRun(context.WithoutCancel(ctx), run.ID, cause.Error(), o.now()); err != nil {
		log.Error().Err(err).Msg("failed to mark run failed")
	}
	o.telemetry.RecordEvaluation(telemetry.EvaluationMetrics{
		Dataset: ds.Name,
		Status:  string(model.RunStatusFailed),
	})
}

func candidateConfig(raw map[string]any) (gateway.Config, error) {
	var cfg gateway.Config
	if len(raw) == 0 {
		return cfg, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return cfg, fmt.Errorf("encode run config: %w", err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("decode run config: %w", err)
	}
	return cfg, nil
}

func candidateInput(raw map[string]any) (gateway.Input, error) {
	var in gateway.Input
	b, err := json.Marshal(raw)
	if err != nil {
		return in, fmt.Errorf("encode test case input: %w", err)
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return in, fmt.Errorf("decode test case input: %w", err)
	}
	return in, nil
}

// criteria 优先使用 evaluation_criteria，其次是 metadata 中的旧字段 expected_traits
func criteria(tc *model.TestCase) any {
	if len(tc.EvaluationCriteria) > 0 {
		var v any
		if err := json.Unmarshal(tc.EvaluationCriteria, &v); err == nil && v != nil {
			return v
		}
	}
	for _, key := range []string{"evaluation_criteria", "expected_traits"} {
		if v, ok := tc.Metadata[key]; ok && v != nil {
			return v
		}
	}
	return map[string]any{}
}

// NewWorker 评估队列的工作循环
func NewWorker(o *Orchestrator, log zerolog.Logger) *queue.Worker {
	handler := func(ctx context.Context, payload []byte) error {
		var job Job
		if err := json.Unmarshal(payload, &job); err != nil || job.RunID == "" {
			log.Error().Bytes("payload", payload).Msg("drop malformed evaluation job")
			return nil
		}
		return o.ProcessJob(ctx, job.RunID)
	}
	return queue.NewWorker(o.queueName, o.queue, handler, log)
}
