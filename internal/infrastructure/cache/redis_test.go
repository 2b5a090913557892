package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/infrastructure/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := cache.NewRedisStore(newRedisClient(t), zap.NewNop(), "test:cache:")
	fp := values.MustFingerprint("acme", "criminal", map[string]string{"name": "john smith"})

	got, err := store.Get(ctx, fp)
	require.NoError(t, err)
	assert.Nil(t, got, "miss returns nil entry")

	cachedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Put(ctx, &cache.Entry{
		Fingerprint: fp,
		ProviderID:  "acme",
		CheckType:   screening.InfoCriminal,
		Payload:     []byte(`{"records":[]}`),
		CachedAt:    cachedAt,
	}))

	got, err = store.Get(ctx, fp)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fp, got.Fingerprint)
	assert.Equal(t, "acme", got.ProviderID)
	assert.Equal(t, screening.InfoCriminal, got.CheckType)
	assert.JSONEq(t, `{"records":[]}`, string(got.Payload))
	assert.True(t, got.CachedAt.Equal(cachedAt))

	require.NoError(t, store.Delete(ctx, fp))
	got, err = store.Get(ctx, fp)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreDropsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := cache.NewRedisStore(client, zap.NewNop(), "test:cache:")
	fp := values.MustFingerprint("acme", "identity", map[string]string{"name": "jane doe"})
	require.NoError(t, mr.Set("test:cache:"+fp.String(), "not json"))

	got, err := store.Get(ctx, fp)
	require.NoError(t, err)
	assert.Nil(t, got, "corrupt entry reads as a miss")
	assert.False(t, mr.Exists("test:cache:"+fp.String()), "corrupt entry evicted")
}

func TestRedisWindowCounter(t *testing.T) {
	ctx := context.Background()
	counter := cache.NewRedisWindowCounter(newRedisClient(t), zap.NewNop())

	for want := int64(1); want <= 3; want++ {
		n, err := counter.Increment(ctx, "acme:rpm", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err := counter.Count(ctx, "acme:rpm", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// a different key counts independently
	n, err = counter.Count(ctx, "other:rpm", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
}
