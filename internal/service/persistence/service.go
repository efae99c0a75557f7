// Package persistence 请求日志的异步持久化
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ashwinyue/llm-governance/internal/config"
	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/queue"
)

const (
	onErrorIgnore     = "ignore"
	defaultBufferSize = 1024
)

var errBufferFull = errors.New("log buffer full")

// Error 持久化失败，只用于日志，不会返回给调用方
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Logger 请求日志提交端口
type Logger interface {
	LogRequest(ctx context.Context, entry *model.RequestLog)
}

// Service 请求日志服务：内存缓冲 + 后台推送到队列
type Service struct {
	cfg   config.PersistenceConfig
	queue queue.Queue
	log   zerolog.Logger

	mu     sync.RWMutex
	buffer chan *model.RequestLog
	closed bool
	wg     sync.WaitGroup
}

// NewService 创建请求日志服务
func NewService(cfg config.PersistenceConfig, q queue.Queue, log zerolog.Logger) *Service {
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Service{
		cfg:    cfg,
		queue:  q,
		log:    log.With().Str("component", "persistence").Logger(),
		buffer: make(chan *model.RequestLog, size),
	}
}

// Start 启动后台推送
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for entry := range s.buffer {
			s.push(ctx, entry)
		}
	}()
}

// LogRequest 提交日志，从不阻塞也从不返回错误
func (s *Service) LogRequest(ctx context.Context, entry *model.RequestLog) {
	if !s.cfg.Enabled || entry == nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.fallback(entry, &Error{Op: "enqueue", Err: queue.ErrClosed})
		return
	}

	select {
	case s.buffer <- entry:
	default:
		s.fallback(entry, &Error{Op: "enqueue", Err: errBufferFull})
	}
}

// Close 停止接收并等待缓冲区清空
func (s *Service) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.buffer)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) push(ctx context.Context, entry *model.RequestLog) {
	data, err := json.Marshal(entry)
	if err != nil {
		s.fallback(entry, &Error{Op: "marshal", Err: err})
		return
	}
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), data); err != nil {
		s.fallback(entry, &Error{Op: "enqueue", Err: err})
	}
}

// fallback 同步输出到日志，保证数据不会静默丢失
func (s *Service) fallback(entry *model.RequestLog, err error) {
	if s.cfg.OnPersistError == onErrorIgnore {
		return
	}
	s.log.Error().Err(err).Str("request_id", entry.RequestID).Msg("failed to queue request log")

	data, mErr := json.Marshal(entry)
	if mErr != nil {
		s.log.Warn().Interface("entry", entry).Msg("FALLBACK_LOG")
		return
	}
	s.log.Warn().RawJSON("entry", data).Msg("FALLBACK_LOG")
}
