package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/llm-governance/internal/service/gateway"
	"github.com/ashwinyue/llm-governance/internal/service/prompt"
)

// PromptHandler 提示词处理器
type PromptHandler struct {
	svc *prompt.Service
}

// NewPromptHandler 创建提示词处理器
func NewPromptHandler(svc *prompt.Service) *PromptHandler {
	return &PromptHandler{svc: svc}
}

// CreatePrompt 创建提示词
func (h *PromptHandler) CreatePrompt(c *gin.Context) {
	var req prompt.CreatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	p, err := h.svc.CreatePrompt(c.Request.Context(), &req)
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, p)
}

// CreateVersion 新增版本
// POST /api/v1/prompts/:id/versions
func (h *PromptHandler) CreateVersion(c *gin.Context) {
	var req prompt.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	v, err := h.svc.CreateVersion(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, v)
}

// BindRequest 环境绑定请求
type BindRequest struct {
	VersionID string `json:"version_id" binding:"required"`
}

// BindEnvironment 绑定环境到版本
// PUT /api/v1/prompts/:id/environments/:env
func (h *PromptHandler) BindEnvironment(c *gin.Context) {
	var req BindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	b, err := h.svc.BindEnvironment(c.Request.Context(), c.Param("id"), req.VersionID, c.Param("env"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, b)
}

// ResolvePrompt 解析环境当前绑定的模板
// GET /api/v1/prompts/:id/resolve?env=prod
func (h *PromptHandler) ResolvePrompt(c *gin.Context) {
	resolved, err := h.svc.GetPrompt(c.Request.Context(), c.Param("id"), c.DefaultQuery("env", gateway.DefaultEnv))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, resolved)
}
