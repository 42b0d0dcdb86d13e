package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestLimiter(t *testing.T) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRateLimiter(client, "ratelimit", zaptest.NewLogger(t)), srv
}

func TestRedisRateLimiterWindow(t *testing.T) {
	limiter, srv := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, retry, err := limiter.Allow(ctx, "reset:10.0.0.1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Zero(t, retry)
	}

	allowed, retry, err := limiter.Allow(ctx, "reset:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, time.Minute)

	// counters are per key
	allowed, _, err = limiter.Allow(ctx, "reset:10.0.0.2", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	// INCR keeps the TTL set by the first hit
	assert.Equal(t, "3", mustGet(t, srv, "ratelimit:reset:10.0.0.1"))
	assert.Equal(t, time.Minute, srv.TTL("ratelimit:reset:10.0.0.1"))

	srv.FastForward(time.Minute + time.Second)
	allowed, _, err = limiter.Allow(ctx, "reset:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiterZeroLimitAllows(t *testing.T) {
	limiter, srv := newTestLimiter(t)

	allowed, _, err := limiter.Allow(context.Background(), "k", 0, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.False(t, srv.Exists("ratelimit:k"))
}

func TestRedisRateLimiterServerDown(t *testing.T) {
	limiter, srv := newTestLimiter(t)
	srv.Close()

	allowed, _, err := limiter.Allow(context.Background(), "k", 1, time.Minute)
	assert.Error(t, err)
	assert.True(t, allowed)
}

func mustGet(t *testing.T, srv *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := srv.Get(key)
	require.NoError(t, err)
	return v
}
