package scan_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ampscan/ampscan/internal/scan"
	storemem "github.com/ampscan/ampscan/internal/store/memory"
)

// stepClock is a manually advanced clock shared with the KV under test.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestWithLockRunsWorkAndReleases(t *testing.T) {
	t.Parallel()

	clock := newStepClock()
	kv := storemem.NewKV(clock)
	coord := scan.NewCoordinator(kv, time.Minute, zap.NewNop())

	var ran bool
	err := coord.WithLock(context.Background(), func(context.Context) error {
		ran = true
		// The lock is visible while work runs.
		_, held, kerr := kv.Get(context.Background(), scan.LockKey)
		require.NoError(t, kerr)
		require.True(t, held)
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	_, held, err := kv.Get(context.Background(), scan.LockKey)
	require.NoError(t, err)
	require.False(t, held)
}

func TestWithLockRejectsConcurrentBatch(t *testing.T) {
	t.Parallel()

	clock := newStepClock()
	kv := storemem.NewKV(clock)
	coord := scan.NewCoordinator(kv, time.Minute, zap.NewNop())

	err := coord.WithLock(context.Background(), func(ctx context.Context) error {
		return coord.WithLock(ctx, func(context.Context) error {
			t.Fatal("nested batch must not run")
			return nil
		})
	})
	require.ErrorIs(t, err, scan.ErrLocked)
}

func TestWithLockReleasesOnWorkError(t *testing.T) {
	t.Parallel()

	clock := newStepClock()
	kv := storemem.NewKV(clock)
	coord := scan.NewCoordinator(kv, time.Minute, zap.NewNop())

	workErr := errors.New("batch exploded")
	err := coord.WithLock(context.Background(), func(context.Context) error {
		return workErr
	})
	require.ErrorIs(t, err, workErr)

	// The next batch acquires immediately.
	err = coord.WithLock(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestWithLockExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	clock := newStepClock()
	kv := storemem.NewKV(clock)
	coord := scan.NewCoordinator(kv, 5*time.Minute, zap.NewNop())

	// Simulate a crashed holder: take the lock directly and never release.
	ok, err := kv.SetNX(context.Background(), scan.LockKey, "locked", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = coord.WithLock(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, scan.ErrLocked)

	clock.Advance(5 * time.Minute)

	err = coord.WithLock(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
}
