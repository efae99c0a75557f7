package evaluation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/llm-governance/internal/config"
	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/queue"
	"github.com/ashwinyue/llm-governance/internal/service/gateway"
	"github.com/ashwinyue/llm-governance/internal/service/judge"
	"github.com/ashwinyue/llm-governance/internal/service/provider"
	"github.com/ashwinyue/llm-governance/internal/testutil"
)

type fixture struct {
	orch      *Orchestrator
	datasets  *testutil.MemoryDatasetRepository
	runs      *testutil.MemoryEvaluationRepository
	candidate *testutil.MockProvider
	judge     *testutil.MockProvider
	logs      *testutil.RecordingLogs
	telemetry *testutil.RecordingTelemetry
	queue     *queue.MemoryQueue
	dataset   *model.Dataset
}

func newFixture(t *testing.T, judgeScore float64, inputs ...string) *fixture {
	t.Helper()
	f := &fixture{
		datasets:  testutil.NewMemoryDatasetRepository(),
		runs:      testutil.NewMemoryEvaluationRepository(),
		candidate: testutil.NewMockProvider("candidate answer", &provider.Usage{PromptTokens: 3, CompletionTokens: 2}),
		judge:     testutil.NewMockProvider(testutil.JudgeJSON(judgeScore), nil),
		logs:      &testutil.RecordingLogs{},
		telemetry: &testutil.RecordingTelemetry{},
		queue:     queue.NewMemoryQueue(16),
	}

	reg := provider.NewRegistry()
	reg.Register("candidate", f.candidate)
	reg.Register("judge", f.judge)
	pipeline := gateway.NewPipeline(reg, testutil.ZeroCost{}, f.telemetry, f.logs, zerolog.Nop())

	cfg := config.EvaluationConfig{QueueName: "evaluation-jobs"}
	cfg.Judges.Primary = config.JudgeConfig{Provider: "judge", Model: "judge-model"}
	cfg.Thresholds.RegressionPercentage = 5
	panel := judge.NewPanel(pipeline, cfg, zerolog.Nop())

	f.orch = NewOrchestrator(cfg, f.runs, f.datasets, pipeline, panel, f.queue, f.telemetry, zerolog.Nop())

	if len(inputs) == 0 {
		inputs = []string{"first question", "second question"}
	}
	cases := make([]*model.TestCase, 0, len(inputs))
	for _, in := range inputs {
		cases = append(cases, &model.TestCase{Input: map[string]any{"text": in}})
	}
	f.dataset = f.datasets.AddDataset(&model.Dataset{Name: "golden"}, cases...)
	return f
}

func (f *fixture) newRun(t *testing.T) *model.EvaluationRun {
	t.Helper()
	run := &model.EvaluationRun{
		DatasetID: f.dataset.ID,
		Config:    map[string]any{"provider": "candidate", "model": "cand-1"},
	}
	require.NoError(t, f.runs.CreateRun(context.Background(), run))
	return run
}

func TestProcessJob_Completes(t *testing.T) {
	f := newFixture(t, 4)
	run := f.newRun(t)

	require.NoError(t, f.orch.ProcessJob(context.Background(), run.ID))

	assert.Equal(t,
		[]model.RunStatus{model.RunStatusPending, model.RunStatusRunning, model.RunStatusCompleted},
		f.runs.StatusHistory(run.ID))

	got, err := f.runs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Score)
	assert.InDelta(t, 4.0, *got.Score, 1e-9)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 2.0, got.Summary["total"])
	assert.Nil(t, got.Summary["regression"], "no baseline yet")

	results, err := f.runs.ListResults(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "candidate answer", results[0].Output)
	assert.Equal(t, "looks fine", results[0].Reasoning)
	assert.Contains(t, results[0].Metrics, "primary")

	evals := f.telemetry.EvaluationSnapshot()
	require.Len(t, evals, 1)
	assert.Equal(t, "completed", evals[0].Status)
	assert.Equal(t, "golden", evals[0].Dataset)
}

func TestProcessJob_CandidateRequest(t *testing.T) {
	f := newFixture(t, 4, "only question")
	run := f.newRun(t)
	require.NoError(t, f.orch.ProcessJob(context.Background(), run.ID))

	cases, err := f.datasets.ListTestCases(context.Background(), f.dataset.ID)
	require.NoError(t, err)

	var candidateLog *model.RequestLog
	for _, l := range f.logs.Logs() {
		if l.Provider == "candidate" {
			candidateLog = l
		}
	}
	require.NotNil(t, candidateLog)
	assert.Equal(t, "eval-"+run.ID+"-"+cases[0].ID, candidateLog.RequestID)
	assert.Equal(t, "test", candidateLog.Env)
	assert.Equal(t, "cand-1", f.candidate.LastCall().Options.Model)
	assert.Equal(t, "only question", f.candidate.LastCall().Messages[0].Content)
}

func TestProcessJob_Regression(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		policy    map[string]any
		regressed bool
	}{
		{"drop beyond 5 percent", 3.70, nil, true},
		{"drop within 5 percent", 3.80, nil, false},
		{"dataset policy widens threshold", 3.70, map[string]any{"overall_score_drop_percentage": 10.0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.score)
			if tt.policy != nil {
				f.dataset.RegressionPolicy = tt.policy
				f.datasets.AddDataset(f.dataset, &model.TestCase{Input: map[string]any{"text": "q"}})
			}
			f.runs.AddCompletedRun(f.dataset.ID, 4.0, time.Now().Add(-time.Hour))
			run := f.newRun(t)

			require.NoError(t, f.orch.ProcessJob(context.Background(), run.ID))

			got, err := f.runs.GetRun(context.Background(), run.ID)
			require.NoError(t, err)
			reg, ok := got.Summary["regression"].(map[string]any)
			require.True(t, ok, "regression info present")
			assert.Equal(t, tt.regressed, reg["is_regression"])
			assert.Equal(t, 4.0, reg["baseline_score"])

			evals := f.telemetry.EvaluationSnapshot()
			require.Len(t, evals, 1)
			assert.Equal(t, tt.regressed, evals[0].IsRegression)
		})
	}
}

func TestProcessJob_CandidateFailureScoresZero(t *testing.T) {
	f := newFixture(t, 4, "good", "bad")
	f.candidate.Respond = func(msgs []provider.Message, _ provider.Options) (*provider.Response, error) {
		if msgs[0].Content == "bad" {
			return nil, errors.New("upstream 500")
		}
		return &provider.Response{Content: "fine"}, nil
	}
	run := f.newRun(t)

	require.NoError(t, f.orch.ProcessJob(context.Background(), run.ID))

	results, err := f.runs.ListResults(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 4.0, results[0].Score)
	assert.Equal(t, 0.0, results[1].Score)
	assert.True(t, strings.HasPrefix(results[1].Output, "ERROR: "))
	assert.Contains(t, results[1].Error, "upstream 500")
	assert.Equal(t, 1, f.judge.CallCount(), "judging skipped for failed candidate")

	got, err := f.runs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.InDelta(t, 2.0, *got.Score, 1e-9)
	assert.Equal(t, 1.0, got.Summary["failed"])
}

func TestProcessJob_JudgeErrorScoresZero(t *testing.T) {
	f := newFixture(t, 4)
	f.judge.Respond = func([]provider.Message, provider.Options) (*provider.Response, error) {
		return &provider.Response{Content: "no idea"}, nil
	}
	run := f.newRun(t)

	require.NoError(t, f.orch.ProcessJob(context.Background(), run.ID))

	results, err := f.runs.ListResults(context.Background(), run.ID)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, 0.0, r.Score)
		assert.NotEmpty(t, r.Error)
		assert.Equal(t, "candidate answer", r.Output)
	}
	got, err := f.runs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
}

func TestProcessJob_BaselineErrorLeavesRegressionNull(t *testing.T) {
	f := newFixture(t, 4)
	f.runs.BaselineErr = errors.New("db timeout")
	run := f.newRun(t)

	require.NoError(t, f.orch.ProcessJob(context.Background(), run.ID))

	got, err := f.runs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Nil(t, got.Summary["regression"])
	assert.Contains(t, got.Summary["regression_error"], "db timeout")
}

func TestProcessJob_FailureMarksRunFailed(t *testing.T) {
	f := newFixture(t, 4)
	f.runs.ResultErr = errors.New("disk full")
	run := f.newRun(t)

	err := f.orch.ProcessJob(context.Background(), run.ID)
	require.Error(t, err)

	assert.Equal(t,
		[]model.RunStatus{model.RunStatusPending, model.RunStatusRunning, model.RunStatusFailed},
		f.runs.StatusHistory(run.ID))
	got, err := f.runs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Error, "disk full")

	evals := f.telemetry.EvaluationSnapshot()
	require.Len(t, evals, 1)
	assert.Equal(t, "failed", evals[0].Status)
}

func TestProcessJob_RejectsNonPendingRun(t *testing.T) {
	f := newFixture(t, 4)
	run := f.newRun(t)
	require.NoError(t, f.orch.ProcessJob(context.Background(), run.ID))

	err := f.orch.ProcessJob(context.Background(), run.ID)
	assert.True(t, errors.Is(err, ErrRunNotPending))
	assert.Len(t, f.runs.StatusHistory(run.ID), 3, "redelivery must not touch the run")
}

func TestProcessJob_DisagreementCounted(t *testing.T) {
	f := newFixture(t, 4)
	reg := provider.NewRegistry()
	reg.Register("candidate", f.candidate)
	reg.Register("judge", f.judge)
	reg.Register("second", testutil.NewMockProvider(testutil.JudgeJSON(2), nil))
	pipeline := gateway.NewPipeline(reg, testutil.ZeroCost{}, f.telemetry, f.logs, zerolog.Nop())

	cfg := config.EvaluationConfig{}
	cfg.Judges.Primary = config.JudgeConfig{Provider: "judge"}
	cfg.Judges.Secondary = []config.JudgeConfig{{Provider: "second"}}
	f.orch.gateway = pipeline
	f.orch.judges = judge.NewPanel(pipeline, cfg, zerolog.Nop())

	run := f.newRun(t)
	require.NoError(t, f.orch.ProcessJob(context.Background(), run.ID))

	got, err := f.runs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Summary["disagreements"])
	assert.InDelta(t, 4.0, *got.Score, 1e-9, "score follows the primary judge")
}

func TestCreateRun_WorkerProcessesQueuedJob(t *testing.T) {
	f := newFixture(t, 5)

	run, err := f.orch.CreateRun(context.Background(), &CreateRunRequest{
		DatasetID: "golden",
		Config:    map[string]any{"provider": "candidate"},
	})
	require.NoError(t, err)
	assert.Equal(t, f.dataset.ID, run.DatasetID)

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(f.orch, zerolog.Nop()).WithPollTimeout(10 * time.Millisecond)
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		got, err := f.runs.GetRun(context.Background(), run.ID)
		return err == nil && got.Status == model.RunStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestCreateRun_UnknownDataset(t *testing.T) {
	f := newFixture(t, 4)
	_, err := f.orch.CreateRun(context.Background(), &CreateRunRequest{DatasetID: "missing"})
	assert.Error(t, err)
	n, _ := f.queue.Len(context.Background())
	assert.Equal(t, int64(0), n)
}
