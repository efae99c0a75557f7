package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ashwinyue/llm-governance/internal/model"
)

// promptRepository 提示词仓库
type promptRepository struct {
	db *gorm.DB
}

// NewPromptRepository 创建提示词仓库
func NewPromptRepository(db *gorm.DB) PromptRepository {
	return &promptRepository{db: db}
}

func (r *promptRepository) CreatePrompt(ctx context.Context, prompt *model.Prompt) error {
	return r.db.WithContext(ctx).Create(prompt).Error
}

func (r *promptRepository) GetPrompt(ctx context.Context, idOrName string) (*model.Prompt, error) {
	var prompt model.Prompt
	err := r.db.WithContext(ctx).Where("id = ? OR name = ?", idOrName, idOrName).First(&prompt).Error
	if err != nil {
		return nil, translate(err)
	}
	return &prompt, nil
}

func (r *promptRepository) CreateVersion(ctx context.Context, version *model.PromptVersion) error {
	return r.db.WithContext(ctx).Create(version).Error
}

func (r *promptRepository) GetVersion(ctx context.Context, id string) (*model.PromptVersion, error) {
	var version model.PromptVersion
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&version).Error; err != nil {
		return nil, translate(err)
	}
	return &version, nil
}

// UpsertBinding 绑定环境到版本，已存在则覆盖
func (r *promptRepository) UpsertBinding(ctx context.Context, binding *model.PromptBinding) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "prompt_id"}, {Name: "env"}},
		DoUpdates: clause.AssignmentColumns([]string{"version_id", "updated_at"}),
	}).Create(binding).Error
}

func (r *promptRepository) GetBinding(ctx context.Context, promptID, env string) (*model.PromptBinding, error) {
	var binding model.PromptBinding
	err := r.db.WithContext(ctx).Where("prompt_id = ? AND env = ?", promptID, env).First(&binding).Error
	if err != nil {
		return nil, translate(err)
	}
	return &binding, nil
}
