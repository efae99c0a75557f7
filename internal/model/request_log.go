package model

import (
	"time"

	"gorm.io/datatypes"
)

// RequestStatus 网关调用结果
type RequestStatus string

const (
	RequestStatusSuccess RequestStatus = "success"
	RequestStatusError   RequestStatus = "error"
)

// RequestLog 网关调用日志，只追加
type RequestLog struct {
	ID            uint              `json:"-" gorm:"primaryKey;autoIncrement"`
	RequestID     string            `json:"request_id" gorm:"type:varchar(128);index"`
	Timestamp     time.Time         `json:"timestamp" gorm:"index"`
	Env           string            `json:"env" gorm:"type:varchar(32)"`
	Provider      string            `json:"provider" gorm:"type:varchar(64);index"`
	Model         string            `json:"model" gorm:"type:varchar(128)"`
	PromptID      string            `json:"prompt_id,omitempty" gorm:"type:varchar(255)"`
	PromptVersion string            `json:"prompt_version,omitempty" gorm:"type:varchar(64)"`
	LatencyMs     int64             `json:"latency_ms"`
	TokensIn      int               `json:"tokens_in"`
	TokensOut     int               `json:"tokens_out"`
	CostUSD       float64           `json:"cost_usd"`
	Status        RequestStatus     `json:"status" gorm:"type:varchar(16);index"`
	ErrorCode     string            `json:"error_code,omitempty" gorm:"type:varchar(64)"`
	ErrorMessage  string            `json:"error_message,omitempty" gorm:"type:text"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
}

// TableName 指定表名
func (RequestLog) TableName() string {
	return "request_logs"
}
