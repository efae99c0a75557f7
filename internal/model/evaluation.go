// Package model 提供持久化数据模型
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunStatus 评估运行状态
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"   // 待执行
	RunStatusRunning   RunStatus = "running"   // 执行中
	RunStatusCompleted RunStatus = "completed" // 已完成
	RunStatusFailed    RunStatus = "failed"    // 失败
)

// EvaluationRun 一次数据集评估
type EvaluationRun struct {
	ID          string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	DatasetID   string            `json:"dataset_id" gorm:"type:varchar(36);not null;index"`
	PromptID    string            `json:"prompt_id,omitempty" gorm:"type:varchar(255)"`
	Config      datatypes.JSONMap `json:"config"` // provider, model, params
	Status      RunStatus         `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Score       *float64          `json:"score,omitempty"`
	Summary     datatypes.JSONMap `json:"summary,omitempty"`
	Error       string            `json:"error,omitempty" gorm:"type:text"`
	CreatedAt   time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// BeforeCreate GORM 钩子，创建前生成 UUID
func (r *EvaluationRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = RunStatusPending
	}
	return nil
}

// TableName 指定表名
func (EvaluationRun) TableName() string {
	return "evaluation_runs"
}

// EvaluationResult 单个测试用例的评估结果
type EvaluationResult struct {
	ID         string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	RunID      string            `json:"run_id" gorm:"type:varchar(36);not null;index"`
	TestCaseID string            `json:"test_case_id" gorm:"type:varchar(36);not null;index"`
	Output     string            `json:"output" gorm:"type:text"`
	Score      float64           `json:"score"`
	Reasoning  string            `json:"reasoning,omitempty" gorm:"type:text"`
	Error      string            `json:"error,omitempty" gorm:"type:text"`
	Metrics    datatypes.JSONMap `json:"metrics,omitempty"` // 完整评委打分
	CreatedAt  time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate GORM 钩子
func (r *EvaluationResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (EvaluationResult) TableName() string {
	return "evaluation_results"
}
