// Package handler HTTP 处理器
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/llm-governance/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Gateway    *GatewayHandler
	Dataset    *DatasetHandler
	Evaluation *EvaluationHandler
	Prompt     *PromptHandler
	System     *SystemHandler
}

// NewHandlers 创建所有处理器，db 仅用于健康检查，可为空
func NewHandlers(svc *service.Services, db Pinger) *Handlers {
	return &Handlers{
		Gateway:    NewGatewayHandler(svc.Gateway),
		Dataset:    NewDatasetHandler(svc.Dataset),
		Evaluation: NewEvaluationHandler(svc.Evaluation),
		Prompt:     NewPromptHandler(svc.Prompt),
		System:     NewSystemHandler(svc.Registry, db),
	}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	return page, size
}
