package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/rentpay/pkg/config"
)

// NewClient returns nil when no address is configured; consumers fall back
// to in-process behaviour.
func NewClient(lc fx.Lifecycle, cfg *config.Config, l *zap.SugaredLogger) (*goredis.Client, error) {
	if cfg.Redis.Addr == "" {
		l.Infow("redis not configured, using in-process locks")
		return nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: 20,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := rdb.Ping(pingCtx).Err(); err != nil {
				l.Errorw("redis ping failed", "addr", cfg.Redis.Addr, "err", err)
				return err
			}
			l.Infow("connected to redis", "addr", cfg.Redis.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})
	return rdb, nil
}

var Module = fx.Options(
	fx.Provide(NewClient),
)
