package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/llm-governance/internal/service/evaluation"
)

// EvaluationHandler 评估处理器
type EvaluationHandler struct {
	svc *evaluation.Orchestrator
}

// NewEvaluationHandler 创建评估处理器
func NewEvaluationHandler(svc *evaluation.Orchestrator) *EvaluationHandler {
	return &EvaluationHandler{svc: svc}
}

// CreateRun 创建评估运行并投递到队列
// POST /api/v1/evaluations
func (h *EvaluationHandler) CreateRun(c *gin.Context) {
	var req evaluation.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	run, err := h.svc.CreateRun(c.Request.Context(), &req)
	if err != nil {
		Error(c, err)
		return
	}

	Accepted(c, run)
}

// GetRun 获取运行
func (h *EvaluationHandler) GetRun(c *gin.Context) {
	run, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, run)
}

// ListRuns 列出运行，可按 dataset_id 过滤
func (h *EvaluationHandler) ListRuns(c *gin.Context) {
	page, size := pageParams(c)

	runs, err := h.svc.ListRuns(c.Request.Context(), c.Query("dataset_id"), page, size)
	if err != nil {
		Error(c, err)
		return
	}

	SuccessWithPagination(c, runs, page, size)
}

// ListResults 运行的用例结果
func (h *EvaluationHandler) ListResults(c *gin.Context) {
	results, err := h.svc.ListResults(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, results)
}
