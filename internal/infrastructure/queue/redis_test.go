package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/clearvet/screening-backend/internal/infrastructure/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisQueuePopInOrder(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q := queue.NewRedisQueue(client, "test:events", time.Second)
	require.NoError(t, q.Push(ctx, []byte("first")))
	require.NoError(t, q.Push(ctx, []byte("second")))

	raw, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", string(raw))

	raw, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(raw))
}

func TestRedisQueuePopTimesOutEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q := queue.NewRedisQueue(client, "test:events", 50*time.Millisecond)
	raw, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Nil(t, raw)
}
