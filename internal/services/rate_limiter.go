package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter is a fixed-window per-user counter kept in Redis. A nil
// client or a non-positive limit disables it.
type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

func (l *RateLimiter) key(userID string) string {
	return fmt.Sprintf("%s:ratelimit:%s", l.prefix, userID)
}

func (l *RateLimiter) enabled() bool {
	return l != nil && l.redis != nil && l.limit > 0
}

// Check returns ErrRateLimited once the user has used up the window.
func (l *RateLimiter) Check(ctx context.Context, userID string) error {
	if !l.enabled() {
		return nil
	}

	count, err := l.redis.Get(ctx, l.key(userID)).Int()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("rate limit lookup: %w", err)
	}

	if count >= l.limit {
		return ErrRateLimited
	}
	return nil
}

// Record counts one use against the current window.
func (l *RateLimiter) Record(ctx context.Context, userID string) error {
	if !l.enabled() {
		return nil
	}

	key := l.key(userID)
	pipe := l.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	_, err := pipe.Exec(ctx)
	return err
}
