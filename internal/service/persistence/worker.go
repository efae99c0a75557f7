package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ashwinyue/llm-governance/internal/config"
	"github.com/ashwinyue/llm-governance/internal/model"
	"github.com/ashwinyue/llm-governance/internal/queue"
)

// NewWorker 消费日志队列并写入 Sink
func NewWorker(cfg config.PersistenceConfig, q queue.Queue, sink Sink, log zerolog.Logger) *queue.Worker {
	l := log.With().Str("component", "persistence_worker").Logger()
	handler := func(ctx context.Context, payload []byte) error {
		var entry model.RequestLog
		if err := json.Unmarshal(payload, &entry); err != nil {
			// 坏数据无法重放，直接丢弃
			l.Error().Err(err).Bytes("payload", payload).Msg("drop malformed request log")
			return nil
		}
		if err := sink.Write(ctx, []*model.RequestLog{&entry}); err != nil {
			if cfg.OnPersistError != onErrorIgnore {
				l.Error().Err(err).Str("request_id", entry.RequestID).Msg("failed to persist request log")
			}
			return &Error{Op: "write", Err: fmt.Errorf("request %s: %w", entry.RequestID, err)}
		}
		return nil
	}
	return queue.NewWorker(cfg.QueueName, q, handler, l)
}
