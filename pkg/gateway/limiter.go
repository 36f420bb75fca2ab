package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantumnode/gateway/internal/governance"
	"github.com/quantumnode/gateway/pkg/config"
)

// sweepInterval is how often expired in-memory windows are dropped.
const sweepInterval = time.Minute

// NewLimiter builds the limiter selected by cfg. The returned stop function
// releases the Redis client or the sweeper goroutine.
//
// A Redis backend that cannot be reached at startup is an error; failures
// after startup fall back to per-instance counting.
func NewLimiter(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) (governance.Limiter, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	memory := governance.NewMemoryLimiter()
	sweepCtx, cancel := context.WithCancel(context.Background())
	go memory.RunSweeper(sweepCtx, sweepInterval)

	if cfg.Backend != config.BackendRedis {
		return memory, func() error { cancel(); return nil }, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("parse redis_url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		cancel()
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	limiter := governance.NewRedisLimiter(client,
		governance.WithFallback(memory),
		governance.WithLogger(logger),
	)
	logger.Info("rate limiter using redis", "addr", opts.Addr)
	return limiter, func() error {
		cancel()
		return client.Close()
	}, nil
}
