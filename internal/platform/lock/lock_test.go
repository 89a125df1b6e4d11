package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "reminder:sweep:o1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "reminder:sweep:o1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held key is exclusive")

	_, ok, _ = l.TryLock(ctx, "reminder:sweep:o2", time.Minute)
	assert.True(t, ok, "different keys proceed in parallel")

	unlock()
	_, ok, _ = l.TryLock(ctx, "reminder:sweep:o1", time.Minute)
	assert.True(t, ok)
}

func TestLocalLocker_ExpiredLeaseIsReclaimed(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	stale, ok, _ := l.TryLock(context.Background(), "k", time.Second)
	require.True(t, ok)
	now = now.Add(2 * time.Second)
	_, ok, _ = l.TryLock(context.Background(), "k", time.Second)
	require.True(t, ok)

	// the stale holder must not release the new lease
	stale()
	_, ok, _ = l.TryLock(context.Background(), "k", time.Second)
	assert.False(t, ok)
}

func TestNewLocker_FallsBackWithoutRedis(t *testing.T) {
	l := newLocker(nil, zap.NewNop().Sugar())
	_, isLocal := l.(*LocalLocker)
	assert.True(t, isLocal)
}
