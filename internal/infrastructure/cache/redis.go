package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisStore implements Store on Redis. Entries are stored as JSON under a
// prefixed fingerprint key and expire a day past the longest stale window so
// the freshness policy, not Redis, decides expiry.
type redisStore struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
}

// retention caps how long any entry survives in Redis
const retention = 731 * day

// NewRedisStore creates a Redis-backed cache store
func NewRedisStore(client *redis.Client, logger *zap.Logger, prefix string) Store {
	if prefix == "" {
		prefix = "screen:cache:"
	}
	return &redisStore{client: client, logger: logger, prefix: prefix}
}

func (s *redisStore) key(fp values.Fingerprint) string {
	return s.prefix + fp.String()
}

func (s *redisStore) Get(ctx context.Context, fp values.Fingerprint) (*Entry, error) {
	raw, err := s.client.Get(ctx, s.key(fp)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Warn("dropping undecodable cache entry",
			zap.String("fingerprint", fp.String()),
			zap.Error(err))
		s.client.Del(ctx, s.key(fp))
		return nil, nil
	}
	entry.Fingerprint = fp
	return &entry, nil
}

func (s *redisStore) Put(ctx context.Context, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache entry marshal failed: %w", err)
	}
	if err := s.client.Set(ctx, s.key(entry.Fingerprint), raw, retention).Err(); err != nil {
		return fmt.Errorf("cache put failed: %w", err)
	}
	s.logger.Debug("cache entry stored",
		zap.String("fingerprint", entry.Fingerprint.String()),
		zap.String("provider", entry.ProviderID),
		zap.String("check_type", string(entry.CheckType)))
	return nil
}

func (s *redisStore) Delete(ctx context.Context, fp values.Fingerprint) error {
	if err := s.client.Del(ctx, s.key(fp)).Err(); err != nil {
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// RedisWindowCounter counts provider admissions against rolling windows
// using Redis sorted sets, one member per admission scored by nanosecond
// timestamp. Expired members are trimmed on every check.
type RedisWindowCounter struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
}

// NewRedisWindowCounter creates a rolling-window counter
func NewRedisWindowCounter(client *redis.Client, logger *zap.Logger) *RedisWindowCounter {
	return &RedisWindowCounter{client: client, logger: logger, prefix: "screen:window:"}
}

// Increment records one admission and returns the count within the window,
// including the new admission.
func (c *RedisWindowCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	windowStart := now.Add(-window)
	fullKey := c.prefix + key

	pipe := c.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, fullKey, "-inf", fmt.Sprintf("%d", windowStart.UnixNano()))
	pipe.ZAdd(ctx, fullKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d-%d", now.UnixNano(), now.Nanosecond()%1000),
	})
	countCmd := pipe.ZCard(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("window counter pipeline failed",
			zap.String("key", key),
			zap.Duration("window", window),
			zap.Error(err))
		return 0, fmt.Errorf("window counter pipeline failed: %w", err)
	}
	return countCmd.Val(), nil
}

// Count returns the admissions inside the window without recording one
func (c *RedisWindowCounter) Count(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	fullKey := c.prefix + key

	if err := c.client.ZRemRangeByScore(ctx, fullKey, "-inf",
		fmt.Sprintf("%d", now.Add(-window).UnixNano())).Err(); err != nil {
		return 0, fmt.Errorf("window counter cleanup failed: %w", err)
	}
	count, err := c.client.ZCard(ctx, fullKey).Result()
	if err != nil {
		return 0, fmt.Errorf("window counter count failed: %w", err)
	}
	return count, nil
}
