// Package database 管理 PostgreSQL 连接与表结构迁移
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ashwinyue/llm-governance/internal/config"
	"github.com/ashwinyue/llm-governance/internal/model"
)

const slowQueryThreshold = 500 * time.Millisecond

// 模型标签无法表达的复合索引
var indexes = []string{
	// 同一数据集下用例顺序唯一
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_test_cases_dataset_position ON test_cases (dataset_id, position)`,
	// 回归基线查询：数据集最近一次完成的运行
	`CREATE INDEX IF NOT EXISTS idx_evaluation_runs_baseline ON evaluation_runs (dataset_id, status, completed_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_request_logs_prompt_time ON request_logs (prompt_id, timestamp)`,
}

// DB 数据库封装
type DB struct {
	*gorm.DB
}

// New 创建数据库连接并迁移表结构
func New(cfg *config.Config, log zerolog.Logger) (*DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDSN()), &gorm.Config{
		Logger: newGormLogger(log, cfg.App.Debug),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.MaxLifetime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &DB{DB: db}, nil
}

// Migrate 自动迁移模型并补建复合索引
func Migrate(ctx context.Context, db *gorm.DB) error {
	tx := db.WithContext(ctx)
	if err := tx.AutoMigrate(model.AllModels...); err != nil {
		return err
	}
	for _, stmt := range indexes {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Close 关闭数据库连接
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping 检查数据库连接，供健康检查使用
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// gormWriter 将 gorm 日志写入 zerolog
type gormWriter struct {
	log   zerolog.Logger
	level zerolog.Level
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.WithLevel(w.level).Msgf(format, args...)
}

// newGormLogger debug 时输出全部 SQL，否则只记录慢查询和错误
// 未找到记录由仓库层转换为 ErrNotFound，不单独记录
func newGormLogger(log zerolog.Logger, debug bool) gormlogger.Interface {
	level, w := gormlogger.Warn, gormWriter{log: log.With().Str("component", "gorm").Logger(), level: zerolog.WarnLevel}
	if debug {
		level, w.level = gormlogger.Info, zerolog.DebugLevel
	}
	return gormlogger.New(w, gormlogger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
