package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/llm-governance/internal/config"
	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/queue"
)

type failingQueue struct{ queue.Queue }

func (failingQueue) Enqueue(context.Context, []byte) error { return errors.New("redis down") }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type memorySink struct {
	mu   sync.Mutex
	logs []*model.RequestLog
	err  error
}

func (s *memorySink) Write(ctx context.Context, logs []*model.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.logs = append(s.logs, logs...)
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

func enabledConfig() config.PersistenceConfig {
	return config.PersistenceConfig{Enabled: true, QueueName: "request-logs", BufferSize: 8, OnPersistError: "log_only"}
}

func TestService_LogRequestReachesQueue(t *testing.T) {
	q := queue.NewMemoryQueue(8)
	svc := NewService(enabledConfig(), q, zerolog.Nop())
	svc.Start(context.Background())

	svc.LogRequest(context.Background(), &model.RequestLog{RequestID: "r1", Status: model.RequestStatusSuccess})
	svc.Close()

	payload, err := q.Dequeue(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)

	var got model.RequestLog
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "r1", got.RequestID)
}

func TestService_QueueFailureFallsBackToLog(t *testing.T) {
	out := &syncBuffer{}
	svc := NewService(enabledConfig(), failingQueue{}, zerolog.New(out))
	svc.Start(context.Background())

	assert.NotPanics(t, func() {
		svc.LogRequest(context.Background(), &model.RequestLog{RequestID: "r2"})
	})
	svc.Close()

	assert.True(t, strings.Contains(out.String(), "FALLBACK_LOG"))
	assert.True(t, strings.Contains(out.String(), `"request_id":"r2"`))
}

func TestService_IgnoreModeIsSilent(t *testing.T) {
	out := &syncBuffer{}
	cfg := enabledConfig()
	cfg.OnPersistError = "ignore"
	svc := NewService(cfg, failingQueue{}, zerolog.New(out))
	svc.Start(context.Background())

	svc.LogRequest(context.Background(), &model.RequestLog{RequestID: "r3"})
	svc.Close()

	assert.Empty(t, out.String())
}

func TestService_FullBufferDoesNotBlock(t *testing.T) {
	out := &syncBuffer{}
	cfg := enabledConfig()
	cfg.BufferSize = 1
	// 未启动后台推送，缓冲区填满后走降级
	svc := NewService(cfg, queue.NewMemoryQueue(8), zerolog.New(out))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			svc.LogRequest(context.Background(), &model.RequestLog{RequestID: "r"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("LogRequest blocked")
	}
	assert.True(t, strings.Contains(out.String(), "FALLBACK_LOG"))
}

func TestService_DisabledDropsSilently(t *testing.T) {
	q := queue.NewMemoryQueue(8)
	svc := NewService(config.PersistenceConfig{Enabled: false}, q, zerolog.Nop())
	svc.LogRequest(context.Background(), &model.RequestLog{RequestID: "r"})

	n, _ := q.Len(context.Background())
	assert.Equal(t, int64(0), n)
}

func TestWorker_WritesToSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewMemoryQueue(8)
	sink := &memorySink{}
	w := NewWorker(enabledConfig(), q, sink, zerolog.Nop()).WithPollTimeout(10 * time.Millisecond)

	data, _ := json.Marshal(&model.RequestLog{RequestID: "r1"})
	require.NoError(t, q.Enqueue(ctx, data))
	require.NoError(t, q.Enqueue(ctx, []byte("not json")))
	data, _ = json.Marshal(&model.RequestLog{RequestID: "r2"})
	require.NoError(t, q.Enqueue(ctx, data))

	go w.Run(ctx)
	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-w.Done()
}
