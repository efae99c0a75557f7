// Package logger 构建全局使用的 zerolog 日志器
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashwinyue/llm-governance/internal/config"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// New 根据应用配置创建日志器
func New(cfg config.AppConfig) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.Debug {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.Name).
		Str("env", cfg.Environment).
		Logger()
}

// Nop 返回不输出的日志器，测试中使用
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// WithRequestID 在上下文中记录请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext 获取上下文中的请求 ID
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext 返回带上下文字段的日志器
func FromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return base.With().Str("request_id", id).Logger()
	}
	return base
}
