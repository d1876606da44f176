package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	window := time.Minute

	t.Run("under the limit", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		limiter := NewRateLimiter(client, "agents", 3, window)

		mock.ExpectGet("agents:ratelimit:user1").SetVal("2")
		assert.NoError(t, limiter.Check(ctx, "user1"))

		mock.ExpectIncr("agents:ratelimit:user1").SetVal(3)
		mock.ExpectExpire("agents:ratelimit:user1", window).SetVal(true)
		assert.NoError(t, limiter.Record(ctx, "user1"))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("first use", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		limiter := NewRateLimiter(client, "agents", 3, window)

		mock.ExpectGet("agents:ratelimit:user1").RedisNil()
		assert.NoError(t, limiter.Check(ctx, "user1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("limit reached", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		limiter := NewRateLimiter(client, "agents", 3, window)

		mock.ExpectGet("agents:ratelimit:user1").SetVal("3")
		assert.ErrorIs(t, limiter.Check(ctx, "user1"), ErrRateLimited)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis failure", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		limiter := NewRateLimiter(client, "agents", 3, window)

		mock.ExpectGet("agents:ratelimit:user1").SetErr(errors.New("connection refused"))
		err := limiter.Check(ctx, "user1")
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrRateLimited))
	})

	t.Run("disabled without redis", func(t *testing.T) {
		limiter := NewRateLimiter(nil, "agents", 3, window)
		assert.NoError(t, limiter.Check(ctx, "user1"))
		assert.NoError(t, limiter.Record(ctx, "user1"))

		var unset *RateLimiter
		assert.NoError(t, unset.Check(ctx, "user1"))
	})
}
