package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ashwinyue/llm-governance/internal/model"
)

// requestLogRepository 请求日志仓库，只追加
type requestLogRepository struct {
	db *gorm.DB
}

// NewRequestLogRepository 创建请求日志仓库
func NewRequestLogRepository(db *gorm.DB) RequestLogRepository {
	return &requestLogRepository{db: db}
}

// CreateBatch 批量写入
func (r *requestLogRepository) CreateBatch(ctx context.Context, logs []*model.RequestLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, 200).Error
}
