package redis_tools

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"game-bridge/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultPoolSize     = 20
	defaultMinIdleConns = 2
	dialTimeout         = 3 * time.Second
)

// Open builds a client and pings it once. The caller owns Close.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.MinIdleConns <= 0 {
		cfg.MinIdleConns = defaultMinIdleConns
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  dialTimeout,
		WriteTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Health is the last observed result of the periodic ping.
type Health struct {
	healthy atomic.Bool
}

func (h *Health) Healthy() bool {
	return h.healthy.Load()
}

// StartHealthCheck pings client every interval until ctx is done. It only
// reports state; it never closes or rebuilds the client.
func StartHealthCheck(
	ctx context.Context,
	client *redis.Client,
	logger *zap.Logger,
	interval time.Duration,
) *Health {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	dao := NewRedisDao(client)
	h := &Health{}
	h.healthy.Store(true)
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				err := dao.Ping(checkCtx)
				cancel()

				if err != nil {
					if h.healthy.Swap(false) {
						logger.Warn("redis ping failed",
							zap.String("addr", client.Options().Addr),
							zap.String("reason", err.Error()),
						)
					}
					continue
				}
				if !h.healthy.Swap(true) {
					logger.Info("redis ping recovered", zap.String("addr", client.Options().Addr))
				}
			}
		}
	}()
	return h
}
