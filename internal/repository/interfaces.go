// Package repository 定义数据访问接口
// 接口抽象使依赖注入和单元测试成为可能
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ashwinyue/llm-governance/internal/model"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict 条件状态更新未命中，运行已不处于预期状态
	ErrStatusConflict = errors.New("run status conflict")
)

// DatasetRepository 数据集数据访问接口
type DatasetRepository interface {
	// ReplaceDataset 在一个事务内按名称 upsert 数据集并整体替换其测试用例
	ReplaceDataset(ctx context.Context, dataset *model.Dataset, cases []*model.TestCase) error
	GetByID(ctx context.Context, id string) (*model.Dataset, error)
	GetByName(ctx context.Context, name string) (*model.Dataset, error)
	List(ctx context.Context, offset, limit int) ([]*model.Dataset, error)
	// ListTestCases 按 position 升序返回
	ListTestCases(ctx context.Context, datasetID string) ([]*model.TestCase, error)
}

// EvaluationRepository 评估运行与结果数据访问接口
type EvaluationRepository interface {
	CreateRun(ctx context.Context, run *model.EvaluationRun) error
	GetRun(ctx context.Context, id string) (*model.EvaluationRun, error)
	ListRuns(ctx context.Context, datasetID string, offset, limit int) ([]*model.EvaluationRun, error)

	// 条件状态迁移，状态不符时返回 ErrStatusConflict
	MarkRunning(ctx context.Context, id string, at time.Time) error
	CompleteRun(ctx context.Context, id string, score float64, summary map[string]any, at time.Time) error
	FailRun(ctx context.Context, id string, reason string, at time.Time) error

	// LatestCompletedRun 返回同一数据集最近完成的其它运行，不存在时返回 ErrNotFound
	LatestCompletedRun(ctx context.Context, datasetID, excludeRunID string) (*model.EvaluationRun, error)

	CreateResult(ctx context.Context, result *model.EvaluationResult) error
	ListResults(ctx context.Context, runID string) ([]*model.EvaluationResult, error)
}

// PromptRepository 提示词数据访问接口
type PromptRepository interface {
	CreatePrompt(ctx context.Context, prompt *model.Prompt) error
	// GetPrompt 按 ID 或名称查找
	GetPrompt(ctx context.Context, idOrName string) (*model.Prompt, error)
	CreateVersion(ctx context.Context, version *model.PromptVersion) error
	GetVersion(ctx context.Context, id string) (*model.PromptVersion, error)
	UpsertBinding(ctx context.Context, binding *model.PromptBinding) error
	GetBinding(ctx context.Context, promptID, env string) (*model.PromptBinding, error)
}

// RequestLogRepository 请求日志数据访问接口
type RequestLogRepository interface {
	CreateBatch(ctx context.Context, logs []*model.RequestLog) error
}

// 确保实现了接口
var (
	_ DatasetRepository    = (*datasetRepository)(nil)
	_ EvaluationRepository = (*evaluationRepository)(nil)
	_ PromptRepository     = (*promptRepository)(nil)
	_ RequestLogRepository = (*requestLogRepository)(nil)
)
