package main

import (
	"context"
	"fmt"
	"time"

	redis "github.com/go-redis/redis/v8"
	"github.com/timerd/scheduler/internal/schedule"
	"github.com/timerd/scheduler/internal/scheduler"
	"github.com/timerd/scheduler/pkg/config"
	"go.uber.org/zap"
)

func ProvideCalculator(cfg config.Config) (*schedule.Calculator, error) {
	return schedule.NewCalculator(cfg.Scheduler.Timezone)
}

func ProvideRateLimiterConfig(cfg config.Config) config.RateLimiterConfig {
	return cfg.Executor.RateLimiter
}

// ProvideRedisClient builds a redis client from typed config.
// Returns nil when redis is disabled.
func ProvideRedisClient(cfg config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideLocker picks the coordination backend. With redis enabled the
// connection must be reachable at startup; a misconfigured redis should
// fail fast rather than silently degrade to process-local locks.
func ProvideLocker(cfg config.Config, logger *zap.Logger) (scheduler.Locker, error) {
	client := ProvideRedisClient(cfg)
	if client == nil {
		return scheduler.NewMemoryLocker(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return scheduler.NewRedisLocker(client, cfg.Instance.Name, logger), nil
}
