// Package queue 后台任务传输：异步提交端口与单任务工作循环
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrEmpty 在超时时间内没有可用任务
	ErrEmpty = errors.New("queue empty")
	// ErrClosed 队列已关闭
	ErrClosed = errors.New("queue closed")
)

// Queue 任务队列
type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
	// Dequeue 阻塞至多 timeout，无任务时返回 ErrEmpty
	Dequeue(ctx context.Context, timeout time.Duration) ([]byte, error)
	Len(ctx context.Context) (int64, error)
	Close() error
}

// MemoryQueue 进程内队列，用于测试和单机部署
type MemoryQueue struct {
	mu     sync.Mutex
	items  chan []byte
	closed bool
}

// NewMemoryQueue 创建进程内队列
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{items: make(chan []byte, capacity)}
}

// Enqueue 入队，队列满时返回错误而非阻塞
func (q *MemoryQueue) Enqueue(ctx context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.items <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("memory queue full")
	}
}

// Dequeue 出队
func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case item, ok := <-q.items:
		if !ok {
			return nil, ErrClosed
		}
		return item, nil
	case <-timer.C:
		return nil, ErrEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len 当前积压数量
func (q *MemoryQueue) Len(ctx context.Context) (int64, error) {
	return int64(len(q.items)), nil
}

// Close 关闭队列，已入队的任务仍可被取出
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	return nil
}
