package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"

	"github.com/ashwinyue/llm-governance/internal/config"
	"github.com/ashwinyue/llm-governance/internal/database"
	"github.com/ashwinyue/llm-governance/internal/handler"
	"github.com/ashwinyue/llm-governance/internal/logger"
	"github.com/ashwinyue/llm-governance/internal/repository"
	"github.com/ashwinyue/llm-governance/internal/router"
	"github.com/ashwinyue/llm-governance/internal/service"
	"github.com/ashwinyue/llm-governance/internal/service/callback"
	"github.com/ashwinyue/llm-governance/internal/service/telemetry"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLog := logger.New(config.AppConfig{})
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.App)

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	callback.SetupGlobalCallbacks(log)
	shutdownTracing, err := telemetry.SetupTracing(cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// 初始化数据库
	db, err := database.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init database")
	}
	defer db.Close()
	log.Info().Str("dbname", cfg.Database.DBName).Msg("database connected")

	// 初始化 Redis，未配置主机时使用进程内队列
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.GetAddr()).Msg("failed to connect redis")
		}
	} else {
		log.Warn().Msg("redis not configured, using in-process queues")
	}

	// 初始化各层
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos := repository.NewRepositories(db.DB)
	services, err := service.NewServices(ctx, cfg, repos, service.NewQueues(cfg, redisClient), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init services")
	}
	services.Start(ctx)
	handlers := handler.NewHandlers(services, db)

	// 初始化路由
	opts := router.Options{JWTSecret: cfg.Server.JWTSecret}
	if services.Metrics != nil {
		opts.Metrics = services.Metrics.Handler()
	}
	r := router.SetupRouter(handlers, opts, log)

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 启动服务器
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// 等待中断信号
	<-ctx.Done()
	log.Info().Msg("shutting down server")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	services.Close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("server exited")
}
