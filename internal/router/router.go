package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ashwinyue/llm-governance/internal/handler"
	"github.com/ashwinyue/llm-governance/internal/middleware"
)

// Options 路由选项
type Options struct {
	JWTSecret string
	// Metrics 为空时不注册 /metrics
	Metrics http.Handler
}

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, opts Options, log zerolog.Logger) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware(log))
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(log))

	// 健康检查与指标
	r.GET("/health", h.System.Health)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	auth := middleware.AuthMiddleware(opts.JWTSecret)

	// 网关
	llm := r.Group("/llm/v1", auth)
	{
		llm.POST("/chat/completions", h.Gateway.ChatCompletions)
	}

	// API v1
	v1 := r.Group("/api/v1", auth)
	{
		// Dataset 数据集
		datasets := v1.Group("/datasets")
		{
			datasets.POST("/import", h.Dataset.ImportDataset)
			datasets.GET("", h.Dataset.ListDatasets)
			datasets.GET("/:id", h.Dataset.GetDataset)
		}

		// Evaluation 评估运行
		evals := v1.Group("/evaluations")
		{
			evals.POST("", h.Evaluation.CreateRun)
			evals.GET("", h.Evaluation.ListRuns)
			evals.GET("/:id", h.Evaluation.GetRun)
			evals.GET("/:id/results", h.Evaluation.ListResults)
		}

		// Prompt 提示词
		prompts := v1.Group("/prompts")
		{
			prompts.POST("", h.Prompt.CreatePrompt)
			prompts.POST("/:id/versions", h.Prompt.CreateVersion)
			prompts.PUT("/:id/environments/:env", h.Prompt.BindEnvironment)
			prompts.GET("/:id/resolve", h.Prompt.ResolvePrompt)
		}
	}

	return r
}
