// Package queue provides the Redis-backed inbound event queue the lifecycle
// consumer drains.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue pops messages from a Redis list
type RedisQueue struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisQueue creates a queue over the given list key
func NewRedisQueue(client *redis.Client, key string, timeout time.Duration) *RedisQueue {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RedisQueue{client: client, key: key, timeout: timeout}
}

// Pop blocks up to the poll timeout for the next message. A timeout without
// a message returns (nil, nil).
func (q *RedisQueue) Pop(ctx context.Context) ([]byte, error) {
	res, err := q.client.BLPop(ctx, q.timeout, q.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue pop failed: %w", err)
	}
	return []byte(res[1]), nil
}

// Push appends a message; used by tests and local tooling
func (q *RedisQueue) Push(ctx context.Context, raw []byte) error {
	if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("queue push failed: %w", err)
	}
	return nil
}
