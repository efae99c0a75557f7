package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ProviderLister 已注册供应商
type ProviderLister interface {
	Names() []string
}

// Pinger 存储连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler 系统处理器
type SystemHandler struct {
	providers ProviderLister
	db        Pinger
}

// NewSystemHandler 创建系统处理器，db 可为空
func NewSystemHandler(providers ProviderLister, db Pinger) *SystemHandler {
	return &SystemHandler{providers: providers, db: db}
}

// Health 健康检查
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	data := gin.H{
		"status":    "ok",
		"providers": h.providers.Names(),
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			data["status"] = "degraded"
			data["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, SuccessResponse{Success: false, Data: data})
			return
		}
		data["database"] = "ok"
	}
	Success(c, data)
}
