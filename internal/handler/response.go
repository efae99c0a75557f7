package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/llm-governance/internal/repository"
	"github.com/ashwinyue/llm-governance/internal/service/dataset"
	"github.com/ashwinyue/llm-governance/internal/service/evaluation"
	"github.com/ashwinyue/llm-governance/internal/service/gateway"
	"github.com/ashwinyue/llm-governance/internal/service/prompt"
)

// SuccessResponse 成功响应
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int         `json:"code"`
	Msg     string      `json:"msg"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// Success 成功响应 (200)
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: data})
}

// Created 创建成功响应 (201)
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: data})
}

// Accepted 已受理 (202)
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, SuccessResponse{Success: true, Data: data})
}

// BadRequest 400 错误响应
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: http.StatusBadRequest, Msg: msg})
}

// NotFound 404 错误响应
func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Code: http.StatusNotFound, Msg: msg})
}

// Conflict 409 错误响应
func Conflict(c *gin.Context, msg string) {
	c.JSON(http.StatusConflict, ErrorResponse{Code: http.StatusConflict, Msg: msg})
}

// InternalServerError 500 错误响应
func InternalServerError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{Code: http.StatusInternalServerError, Msg: msg})
}

// Error 根据错误类型返回相应的错误响应
func Error(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var gv *gateway.ValidationError
	var gp *gateway.ProviderError
	var dv *dataset.ValidationError
	switch {
	case errors.As(err, &gv):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Msg:     gv.Message,
			Error:   gv.Code,
			Details: gv.Details,
		})
	case errors.As(err, &gp):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Code:  http.StatusBadGateway,
			Msg:   gp.Message,
			Error: gp.Code,
		})
	case errors.As(err, &dv):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Msg:     "invalid dataset document",
			Details: dv.Issues,
		})
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, prompt.ErrNoBinding):
		NotFound(c, err.Error())
	case errors.Is(err, prompt.ErrVersionMismatch):
		BadRequest(c, err.Error())
	case errors.Is(err, evaluation.ErrRunNotPending):
		Conflict(c, err.Error())
	default:
		InternalServerError(c, err.Error())
	}
}

// PaginationData 分页响应数据结构
type PaginationData struct {
	Items interface{} `json:"items"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}

// SuccessWithPagination 分页成功响应
func SuccessWithPagination(c *gin.Context, items interface{}, page, size int) {
	Success(c, PaginationData{Items: items, Page: page, Size: size})
}
