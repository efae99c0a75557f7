package repository

import (
	"errors"

	"gorm.io/gorm"
)

// Repositories 仓库集合，用于统一管理所有仓库
type Repositories struct {
	DB         *gorm.DB // 直接访问数据库
	Dataset    DatasetRepository
	Evaluation EvaluationRepository
	Prompt     PromptRepository
	RequestLog RequestLogRepository
}

// NewRepositories 创建所有仓库
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:         db,
		Dataset:    NewDatasetRepository(db),
		Evaluation: NewEvaluationRepository(db),
		Prompt:     NewPromptRepository(db),
		RequestLog: NewRequestLogRepository(db),
	}
}

// translate 将 gorm 的未找到错误统一为 ErrNotFound
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
