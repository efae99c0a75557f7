package gateway

import (
	"errors"
	"fmt"
)

// 错误码
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnknownProvider   = "UNKNOWN_PROVIDER"
	CodeGuardrailRejected = "GUARDRAIL_REJECTED"
	CodePromptUnresolved  = "PROMPT_UNRESOLVED"
	CodeEmptyInput        = "EMPTY_INPUT"
	CodeProviderError     = "PROVIDER_ERROR"
	CodeInternal          = "INTERNAL_ERROR"
)

// FieldError 字段校验失败详情
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// ValidationError 请求不合法，调用方可修正
type ValidationError struct {
	Code    string
	Message string
	Details []FieldError
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ProviderError 上游生成失败
type ProviderError struct {
	Code     string
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: provider %s: %s: %v", e.Code, e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: provider %s: %s", e.Code, e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrorCode 提取错误码，非网关错误返回空
func ErrorCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// asValidation 保留已是网关类型的错误，否则包装为 ValidationError
func asValidation(err error, code, msg string) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ValidationError{Code: code, Message: msg, Err: err}
}
