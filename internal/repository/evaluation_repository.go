// Package repository 数据访问层
package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ashwinyue/llm-governance/internal/model"
)

// evaluationRepository 评估运行仓库
type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository 创建评估运行仓库
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

// CreateRun 创建评估运行
func (r *evaluationRepository) CreateRun(ctx context.Context, run *model.EvaluationRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetRun 根据 ID 获取评估运行
func (r *evaluationRepository) GetRun(ctx context.Context, id string) (*model.EvaluationRun, error) {
	var run model.EvaluationRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, translate(err)
	}
	return &run, nil
}

// ListRuns 列出评估运行（支持按数据集筛选和分页）
func (r *evaluationRepository) ListRuns(ctx context.Context, datasetID string, offset, limit int) ([]*model.EvaluationRun, error) {
	var runs []*model.EvaluationRun
	query := r.db.WithContext(ctx).Model(&model.EvaluationRun{})
	if datasetID != "" {
		query = query.Where("dataset_id = ?", datasetID)
	}
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&runs).Error
	return runs, err
}

// MarkRunning pending -> running
func (r *evaluationRepository) MarkRunning(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, id, model.RunStatusPending, map[string]interface{}{
		"status":     model.RunStatusRunning,
		"started_at": at,
	})
}

// CompleteRun running -> completed
func (r *evaluationRepository) CompleteRun(ctx context.Context, id string, score float64, summary map[string]any, at time.Time) error {
	return r.transition(ctx, id, model.RunStatusRunning, map[string]interface{}{
		"status":       model.RunStatusCompleted,
		"score":        score,
		"summary":      datatypes.JSONMap(summary),
		"completed_at": at,
	})
}

// FailRun running -> failed
func (r *evaluationRepository) FailRun(ctx context.Context, id string, reason string, at time.Time) error {
	return r.transition(ctx, id, model.RunStatusRunning, map[string]interface{}{
		"status":       model.RunStatusFailed,
		"error":        reason,
		"completed_at": at,
	})
}

// transition 条件更新，只有当前状态为 from 时才生效
func (r *evaluationRepository) transition(ctx context.Context, id string, from model.RunStatus, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&model.EvaluationRun{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// LatestCompletedRun 查找回归基线
func (r *evaluationRepository) LatestCompletedRun(ctx context.Context, datasetID, excludeRunID string) (*model.EvaluationRun, error) {
	var run model.EvaluationRun
	err := r.db.WithContext(ctx).
		Where("dataset_id = ? AND status = ? AND id <> ?", datasetID, model.RunStatusCompleted, excludeRunID).
		Order("completed_at DESC").
		First(&run).Error
	if err != nil {
		return nil, translate(err)
	}
	return &run, nil
}

// CreateResult 保存单个用例结果
func (r *evaluationRepository) CreateResult(ctx context.Context, result *model.EvaluationResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

// ListResults 获取运行的全部结果
func (r *evaluationRepository) ListResults(ctx context.Context, runID string) ([]*model.EvaluationResult, error) {
	var results []*model.EvaluationResult
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at ASC").Find(&results).Error
	return results, err
}
