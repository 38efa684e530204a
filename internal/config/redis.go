package config

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRedisClient returns nil when REDIS_ADDR is unset; callers treat a nil client as "cache disabled".
func NewRedisClient(lc fx.Lifecycle, cfg *AppConfig, log *zap.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set, unread-count cache disabled")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", cfg.RedisAddr, err)
	}
	log.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info("Closing Redis connection ...")
			return rdb.Close()
		},
	})
	return rdb, nil
}
