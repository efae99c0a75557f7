package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Dataset 评估数据集，Name 即导入文档中的 dataset_id，全局唯一
type Dataset struct {
	ID               string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name             string            `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Title            string            `json:"title" gorm:"type:varchar(255)"`
	Description      string            `json:"description" gorm:"type:text"`
	Version          string            `json:"version" gorm:"type:varchar(64)"`
	Domain           string            `json:"domain" gorm:"type:varchar(128)"`
	Owner            string            `json:"owner" gorm:"type:varchar(128)"`
	Guidelines       string            `json:"guidelines" gorm:"type:text"`
	RegressionPolicy datatypes.JSONMap `json:"regression_policy"` // 覆盖全局阈值
	ScoringRubric    datatypes.JSONMap `json:"scoring_rubric"`
	CreatedAt        time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time         `json:"updated_at" gorm:"autoUpdateTime"`

	TestCases []TestCase `json:"test_cases,omitempty" gorm:"foreignKey:DatasetID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate GORM 钩子，创建前生成 UUID
func (d *Dataset) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (Dataset) TableName() string {
	return "datasets"
}

// PolicyFloat 读取回归策略中的数值字段
func (d *Dataset) PolicyFloat(key string) (float64, bool) {
	if d == nil || d.RegressionPolicy == nil {
		return 0, false
	}
	switch v := d.RegressionPolicy[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// TestCase 测试用例
type TestCase struct {
	ID                 string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	DatasetID          string            `json:"dataset_id" gorm:"type:varchar(36);not null;index"`
	Position           int               `json:"position" gorm:"not null;default:0"`
	Input              datatypes.JSONMap `json:"input"`
	ExpectedOutput     string            `json:"expected_output" gorm:"type:text"`
	EvaluationCriteria datatypes.JSON    `json:"evaluation_criteria"`
	CriticalDimensions datatypes.JSON    `json:"critical_dimensions"`
	Metadata           datatypes.JSONMap `json:"metadata"` // external_id 保存在此
	CreatedAt          time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate GORM 钩子
func (t *TestCase) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (TestCase) TableName() string {
	return "test_cases"
}
