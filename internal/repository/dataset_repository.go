package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ashwinyue/llm-governance/internal/model"
)

// datasetRepository 数据集仓库
type datasetRepository struct {
	db *gorm.DB
}

// NewDatasetRepository 创建数据集仓库
func NewDatasetRepository(db *gorm.DB) DatasetRepository {
	return &datasetRepository{db: db}
}

// ReplaceDataset 整体替换数据集，任一步失败则全部回滚
func (r *datasetRepository) ReplaceDataset(ctx context.Context, dataset *model.Dataset, cases []*model.TestCase) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Dataset
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", dataset.Name).First(&existing).Error
		switch {
		case err == nil:
			dataset.ID = existing.ID
			dataset.CreatedAt = existing.CreatedAt
			if err := tx.Model(&existing).Select(
				"title", "description", "version", "domain", "owner",
				"guidelines", "regression_policy", "scoring_rubric",
			).Updates(dataset).Error; err != nil {
				return err
			}
		case translate(err) == ErrNotFound:
			if err := tx.Omit("TestCases").Create(dataset).Error; err != nil {
				return err
			}
		default:
			return err
		}

		// 删除旧用例
		if err := tx.Where("dataset_id = ?", dataset.ID).Delete(&model.TestCase{}).Error; err != nil {
			return err
		}

		if len(cases) == 0 {
			return nil
		}
		for i, tc := range cases {
			tc.DatasetID = dataset.ID
			tc.Position = i
		}
		return tx.CreateInBatches(cases, 100).Error
	})
}

// GetByID 根据ID获取数据集
func (r *datasetRepository) GetByID(ctx context.Context, id string) (*model.Dataset, error) {
	var dataset model.Dataset
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&dataset).Error; err != nil {
		return nil, translate(err)
	}
	return &dataset, nil
}

// GetByName 根据唯一名称获取数据集
func (r *datasetRepository) GetByName(ctx context.Context, name string) (*model.Dataset, error) {
	var dataset model.Dataset
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&dataset).Error; err != nil {
		return nil, translate(err)
	}
	return &dataset, nil
}

// List 列出数据集
func (r *datasetRepository) List(ctx context.Context, offset, limit int) ([]*model.Dataset, error) {
	var datasets []*model.Dataset
	err := r.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit).Find(&datasets).Error
	return datasets, err
}

// ListTestCases 获取数据集的全部用例
func (r *datasetRepository) ListTestCases(ctx context.Context, datasetID string) ([]*model.TestCase, error) {
	var cases []*model.TestCase
	err := r.db.WithContext(ctx).Where("dataset_id = ?", datasetID).Order("position ASC").Find(&cases).Error
	return cases, err
}
