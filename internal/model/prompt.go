package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Prompt 提示词
type Prompt struct {
	ID          string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate GORM 钩子
func (p *Prompt) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (Prompt) TableName() string {
	return "prompts"
}

// PromptVersion 提示词版本
type PromptVersion struct {
	ID        string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	PromptID  string            `json:"prompt_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_prompt_version"`
	Version   string            `json:"version" gorm:"type:varchar(64);not null;uniqueIndex:idx_prompt_version"`
	Template  string            `json:"template" gorm:"type:text;not null"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate GORM 钩子
func (v *PromptVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (PromptVersion) TableName() string {
	return "prompt_versions"
}

// PromptBinding 环境绑定的提示词版本
type PromptBinding struct {
	PromptID  string    `json:"prompt_id" gorm:"type:varchar(36);primaryKey"`
	Env       string    `json:"env" gorm:"type:varchar(32);primaryKey"`
	VersionID string    `json:"version_id" gorm:"type:varchar(36);not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (PromptBinding) TableName() string {
	return "prompt_bindings"
}
