package ratelimit

import (
	"context"
	"strings"

	"github.com/draftworks/meridian/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ratelimit",
	fx.Provide(provideLocker),
)

// provideLocker returns nil when redis is not configured; callers treat a
// nil Locker as "skip the fast-path guard".
func provideLocker(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *Locker {
	if !cfg.RedisEnabled {
		return nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Warn("redis enabled but no address configured, lock disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return NewLocker(client)
}
