// Package lock serializes periodic jobs per key across replicas.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Locker obtains a best-effort exclusive lease on key. ok is false when the
// lease is held elsewhere; unlock is then nil.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

type RedisLocker struct {
	client *redislock.Client
	log    *zap.SugaredLogger
}

func NewRedisLocker(rdb *goredis.Client, log *zap.SugaredLogger) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), log: log}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lk, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func() {
		// release must not depend on the caller's (possibly cancelled) context
		if err := lk.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warnw("lock release failed", "key", key, "err", err)
		}
	}, true, nil
}

// LocalLocker is the single-process fallback.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, false, nil
	}
	exp := now.Add(ttl)
	l.held[key] = exp
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.Equal(exp) {
			delete(l.held, key)
		}
	}, true, nil
}

func newLocker(rdb *goredis.Client, log *zap.SugaredLogger) Locker {
	if rdb == nil {
		return NewLocalLocker()
	}
	return NewRedisLocker(rdb, log)
}

var Module = fx.Options(
	fx.Provide(newLocker),
)
