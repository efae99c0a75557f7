package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Handler 处理一个任务
type Handler func(ctx context.Context, payload []byte) error

// Worker 单任务工作循环，同一时刻只处理一个任务
// 失败只记录日志，重试由外部传输负责
type Worker struct {
	name        string
	queue       Queue
	handler     Handler
	log         zerolog.Logger
	pollTimeout time.Duration
	done        chan struct{}
}

// NewWorker 创建工作循环
func NewWorker(name string, q Queue, h Handler, log zerolog.Logger) *Worker {
	return &Worker{
		name:        name,
		queue:       q,
		handler:     h,
		log:         log.With().Str("component", "worker").Str("queue", name).Logger(),
		pollTimeout: time.Second,
		done:        make(chan struct{}),
	}
}

// WithPollTimeout 设置单次出队等待时长
func (w *Worker) WithPollTimeout(d time.Duration) *Worker {
	w.pollTimeout = d
	return w
}

// Run 阻塞运行直到 ctx 取消或队列关闭
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	w.log.Info().Msg("worker started")

	for {
		if ctx.Err() != nil {
			w.log.Info().Msg("worker stopped")
			return
		}

		payload, err := w.queue.Dequeue(ctx, w.pollTimeout)
		switch {
		case err == nil:
		case errors.Is(err, ErrEmpty):
			continue
		case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
			w.log.Info().Msg("worker stopped")
			return
		default:
			w.log.Error().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
			case <-time.After(w.pollTimeout):
			}
			continue
		}

		w.process(ctx, payload)
	}
}

// Done 工作循环退出后关闭
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) process(ctx context.Context, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("job panicked")
		}
	}()

	start := time.Now()
	if err := w.handler(ctx, payload); err != nil {
		w.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
		return
	}
	w.log.Debug().Dur("elapsed", time.Since(start)).Msg("job done")
}
