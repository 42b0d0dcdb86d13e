package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient parses redisURL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisRateLimiter is a fixed-window counter per key.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisRateLimiter(client *redis.Client, prefix string, logger *zap.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: prefix, logger: logger}
}

// Allow counts one hit for key and reports whether it is within limit. When
// denied, retryAfter is the time left in the window.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if limit <= 0 {
		return true, 0, nil
	}
	fullKey := fmt.Sprintf("%s:%s", r.prefix, key)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// SETNX starts the window with its expiry; INCR keeps the TTL
		pipe.SetNX(ctx, fullKey, 0, window)
		incr = pipe.Incr(ctx, fullKey)
		ttl = pipe.PTTL(ctx, fullKey)
		return nil
	})
	if err != nil {
		return true, 0, fmt.Errorf("rate limit pipeline: %w", err)
	}

	if incr.Val() > int64(limit) {
		r.logger.Warn("rate limit exceeded", zap.String("key", fullKey), zap.Int64("count", incr.Val()), zap.Int("limit", limit))
		return false, ttl.Val(), nil
	}
	return true, 0, nil
}
