package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key 前缀
const queueKeyPrefix = "queue:"

// RedisQueue 基于 Redis list 的队列，LPUSH 入队，BRPOP 出队
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue 创建 Redis 队列
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, key: queueKeyPrefix + name}
}

// Enqueue 入队
func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.key, err)
	}
	return nil
}

// Dequeue 出队
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("brpop %s: %w", q.key, err)
	}
	// 返回值为 [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("brpop %s: unexpected reply length %d", q.key, len(res))
	}
	return []byte(res[1]), nil
}

// Len 当前积压数量
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Close 连接由调用方持有，这里不关闭
func (q *RedisQueue) Close() error {
	return nil
}
