package database

import (
	"context"
	"time"

	"github.com/flowsyai/backend/internal/config"
	"github.com/flowsyai/backend/internal/logger"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// InitRedis connects to Redis. It returns nil when Redis is disabled or
// unreachable; callers treat a nil client as "run without Redis".
func InitRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		logger.L().Info("Redis disabled")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.L().Warn("Redis connection failed, continuing without Redis", zap.Error(err))
		rdb.Close()
		return nil
	}

	logger.L().Info("Redis connection established", zap.String("addr", cfg.Host+":"+cfg.Port))
	return rdb
}
