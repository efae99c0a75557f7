package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/repository"
)

// MemoryDatasetRepository 内存数据集仓库
type MemoryDatasetRepository struct {
	mu       sync.Mutex
	datasets map[string]*model.Dataset
	cases    map[string][]*model.TestCase
	// ReplaceErr 非空时 ReplaceDataset 返回此错误且不做任何修改
	ReplaceErr error
	Writes     int
}

// NewMemoryDatasetRepository 创建内存数据集仓库
func NewMemoryDatasetRepository() *MemoryDatasetRepository {
	return &MemoryDatasetRepository{
		datasets: make(map[string]*model.Dataset),
		cases:    make(map[string][]*model.TestCase),
	}
}

func (r *MemoryDatasetRepository) ReplaceDataset(ctx context.Context, dataset *model.Dataset, cases []*model.TestCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ReplaceErr != nil {
		return r.ReplaceErr
	}
	r.Writes++

	now := time.Now()
	var existing *model.Dataset
	for _, d := range r.datasets {
		if d.Name == dataset.Name {
			existing = d
		}
	}
	if existing != nil {
		dataset.ID = existing.ID
		dataset.CreatedAt = existing.CreatedAt
	} else {
		if dataset.ID == "" {
			dataset.ID = uuid.New().String()
		}
		dataset.CreatedAt = now
	}
	dataset.UpdatedAt = now
	cp := *dataset
	cp.TestCases = nil
	r.datasets[dataset.ID] = &cp

	stored := make([]*model.TestCase, 0, len(cases))
	for i, tc := range cases {
		tc.DatasetID = dataset.ID
		tc.Position = i
		if tc.ID == "" {
			tc.ID = uuid.New().String()
		}
		c := *tc
		stored = append(stored, &c)
	}
	r.cases[dataset.ID] = stored
	return nil
}

func (r *MemoryDatasetRepository) GetByID(ctx context.Context, id string) (*model.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.datasets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryDatasetRepository) GetByName(ctx context.Context, name string) (*model.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.datasets {
		if d.Name == name {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *MemoryDatasetRepository) List(ctx context.Context, offset, limit int) ([]*model.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Dataset, 0, len(r.datasets))
	for _, d := range r.datasets {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, offset, limit), nil
}

func (r *MemoryDatasetRepository) ListTestCases(ctx context.Context, datasetID string) ([]*model.TestCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.TestCase, 0, len(r.cases[datasetID]))
	for _, tc := range r.cases[datasetID] {
		cp := *tc
		out = append(out, &cp)
	}
	return out, nil
}

// AddDataset 直接写入数据集与用例
func (r *MemoryDatasetRepository) AddDataset(d *model.Dataset, cases ...*model.TestCase) *model.Dataset {
	_ = r.ReplaceDataset(context.Background(), d, cases)
	return d
}

// MemoryEvaluationRepository 内存评估仓库，记录每个运行的状态变迁
type MemoryEvaluationRepository struct {
	mu      sync.Mutex
	runs    map[string]*model.EvaluationRun
	order   []string
	results map[string][]*model.EvaluationResult
	history map[string][]model.RunStatus
	// BaselineErr 非空时 LatestCompletedRun 返回此错误
	BaselineErr error
	// ResultErr 非空时 CreateResult 返回此错误
	ResultErr error
}

// NewMemoryEvaluationRepository 创建内存评估仓库
func NewMemoryEvaluationRepository() *MemoryEvaluationRepository {
	return &MemoryEvaluationRepository{
		runs:    make(map[string]*model.EvaluationRun),
		results: make(map[string][]*model.EvaluationResult),
		history: make(map[string][]model.RunStatus),
	}
}

func (r *MemoryEvaluationRepository) CreateRun(ctx context.Context, run *model.EvaluationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = model.RunStatusPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	cp := *run
	r.runs[run.ID] = &cp
	r.order = append(r.order, run.ID)
	r.history[run.ID] = append(r.history[run.ID], run.Status)
	return nil
}

func (r *MemoryEvaluationRepository) GetRun(ctx context.Context, id string) (*model.EvaluationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *MemoryEvaluationRepository) ListRuns(ctx context.Context, datasetID string, offset, limit int) ([]*model.EvaluationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.EvaluationRun
	for i := len(r.order) - 1; i >= 0; i-- {
		run := r.runs[r.order[i]]
		if datasetID != "" && run.DatasetID != datasetID {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	return page(out, offset, limit), nil
}

func (r *MemoryEvaluationRepository) MarkRunning(ctx context.Context, id string, at time.Time) error {
	return r.transition(id, model.RunStatusPending, func(run *model.EvaluationRun) {
		run.Status = model.RunStatusRunning
		run.StartedAt = &at
	})
}

func (r *MemoryEvaluationRepository) CompleteRun(ctx context.Context, id string, score float64, summary map[string]any, at time.Time) error {
	return r.transition(id, model.RunStatusRunning, func(run *model.EvaluationRun) {
		run.Status = model.RunStatusCompleted
		run.Score = &score
		run.Summary = datatypes.JSONMap(summary)
		run.CompletedAt = &at
	})
}

func (r *MemoryEvaluationRepository) FailRun(ctx context.Context, id string, reason string, at time.Time) error {
	return r.transition(id, model.RunStatusRunning, func(run *model.EvaluationRun) {
		run.Status = model.RunStatusFailed
		run.Error = reason
		run.CompletedAt = &at
	})
}

func (r *MemoryEvaluationRepository) transition(id string, from model.RunStatus, apply func(*model.EvaluationRun)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.Status != from {
		return repository.ErrStatusConflict
	}
	apply(run)
	r.history[id] = append(r.history[id], run.Status)
	return nil
}

func (r *MemoryEvaluationRepository) LatestCompletedRun(ctx context.Context, datasetID, excludeRunID string) (*model.EvaluationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.BaselineErr != nil {
		return nil, r.BaselineErr
	}
	var latest *model.EvaluationRun
	for _, run := range r.runs {
		if run.DatasetID != datasetID || run.ID == excludeRunID || run.Status != model.RunStatusCompleted {
			continue
		}
		if latest == nil || completedAt(run).After(completedAt(latest)) {
			latest = run
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryEvaluationRepository) CreateResult(ctx context.Context, result *model.EvaluationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ResultErr != nil {
		return r.ResultErr
	}
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	cp := *result
	r.results[result.RunID] = append(r.results[result.RunID], &cp)
	return nil
}

func (r *MemoryEvaluationRepository) ListResults(ctx context.Context, runID string) ([]*model.EvaluationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.EvaluationResult(nil), r.results[runID]...), nil
}

// StatusHistory 运行经历过的全部状态
func (r *MemoryEvaluationRepository) StatusHistory(runID string) []model.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.RunStatus(nil), r.history[runID]...)
}

// AddCompletedRun 写入一个已完成的历史运行，作为回归基线
func (r *MemoryEvaluationRepository) AddCompletedRun(datasetID string, score float64, completed time.Time) *model.EvaluationRun {
	run := &model.EvaluationRun{
		ID:          uuid.New().String(),
		DatasetID:   datasetID,
		Status:      model.RunStatusCompleted,
		Score:       &score,
		CreatedAt:   completed,
		CompletedAt: &completed,
	}
	_ = r.CreateRun(context.Background(), run)
	return run
}

func completedAt(run *model.EvaluationRun) time.Time {
	if run.CompletedAt != nil {
		return *run.CompletedAt
	}
	return run.CreatedAt
}

// MemoryPromptRepository 内存提示词仓库
type MemoryPromptRepository struct {
	mu       sync.Mutex
	prompts  map[string]*model.Prompt
	versions map[string]*model.PromptVersion
	bindings map[string]*model.PromptBinding
}

// NewMemoryPromptRepository 创建内存提示词仓库
func NewMemoryPromptRepository() *MemoryPromptRepository {
	return &MemoryPromptRepository{
		prompts:  make(map[string]*model.Prompt),
		versions: make(map[string]*model.PromptVersion),
		bindings: make(map[string]*model.PromptBinding),
	}
}

func (r *MemoryPromptRepository) CreatePrompt(ctx context.Context, prompt *model.Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prompt.ID == "" {
		prompt.ID = uuid.New().String()
	}
	cp := *prompt
	r.prompts[prompt.ID] = &cp
	return nil
}

func (r *MemoryPromptRepository) GetPrompt(ctx context.Context, idOrName string) (*model.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.prompts {
		if p.ID == idOrName || p.Name == idOrName {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *MemoryPromptRepository) CreateVersion(ctx context.Context, version *model.PromptVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if version.ID == "" {
		version.ID = uuid.New().String()
	}
	cp := *version
	r.versions[version.ID] = &cp
	return nil
}

func (r *MemoryPromptRepository) GetVersion(ctx context.Context, id string) (*model.PromptVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *MemoryPromptRepository) UpsertBinding(ctx context.Context, binding *model.PromptBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *binding
	r.bindings[binding.PromptID+"/"+binding.Env] = &cp
	return nil
}

func (r *MemoryPromptRepository) GetBinding(ctx context.Context, promptID, env string) (*model.PromptBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[promptID+"/"+env]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// MemoryRequestLogRepository 内存请求日志仓库
type MemoryRequestLogRepository struct {
	mu   sync.Mutex
	logs []*model.RequestLog
}

func (r *MemoryRequestLogRepository) CreateBatch(ctx context.Context, logs []*model.RequestLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, logs...)
	return nil
}

// Logs 已写入的全部日志
func (r *MemoryRequestLogRepository) Logs() []*model.RequestLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.RequestLog(nil), r.logs...)
}

// NewMemoryRepositories 组装全部内存仓库
func NewMemoryRepositories() *repository.Repositories {
	return &repository.Repositories{
		Dataset:    NewMemoryDatasetRepository(),
		Evaluation: NewMemoryEvaluationRepository(),
		Prompt:     NewMemoryPromptRepository(),
		RequestLog: &MemoryRequestLogRepository{},
	}
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// 确保实现了接口
var (
	_ repository.DatasetRepository    = (*MemoryDatasetRepository)(nil)
	_ repository.EvaluationRepository = (*MemoryEvaluationRepository)(nil)
	_ repository.PromptRepository     = (*MemoryPromptRepository)(nil)
	_ repository.RequestLogRepository = (*MemoryRequestLogRepository)(nil)
)
