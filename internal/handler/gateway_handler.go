package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/llm-governance/internal/logger"
	"github.com/ashwinyue/llm-governance/internal/service/gateway"
	"github.com/ashwinyue/llm-governance/internal/service/provider"
)

// Executor 网关执行接口
type Executor interface {
	Execute(ctx context.Context, req *gateway.Request) (*provider.Response, error)
	// Reject 请求体无法解码时记录失败并返回校验错误
	Reject(ctx context.Context, requestID string, cause error) error
}

// GatewayHandler 网关处理器
type GatewayHandler struct {
	exec Executor
}

// NewGatewayHandler 创建网关处理器
func NewGatewayHandler(exec Executor) *GatewayHandler {
	return &GatewayHandler{exec: exec}
}

// ChatCompletions 受治理的模型调用
// POST /llm/v1/chat/completions
func (h *GatewayHandler) ChatCompletions(c *gin.Context) {
	var req gateway.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, h.exec.Reject(c.Request.Context(), logger.RequestIDFromContext(c.Request.Context()), err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = logger.RequestIDFromContext(c.Request.Context())
	}

	resp, err := h.exec.Execute(c.Request.Context(), &req)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{
		"request_id": req.RequestID,
		"response":   resp,
	})
}
