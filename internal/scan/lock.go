package scan

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LockKey is the KV entry guarding scan batches.
const LockKey = "scan:lock"

// DefaultLockTTL bounds how long a crashed batch can wedge the lock.
const DefaultLockTTL = 5 * time.Minute

// Coordinator serializes scan batches behind a TTL lock held in external
// storage, so overlapping invocations across processes fail fast rather than
// queue. The lock always expires even without an explicit release.
type Coordinator struct {
	kv     KV
	ttl    time.Duration
	logger *zap.Logger
}

// NewCoordinator constructs a Coordinator. A non-positive ttl uses the
// default of five minutes.
func NewCoordinator(kv KV, ttl time.Duration, logger *zap.Logger) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{kv: kv, ttl: ttl, logger: logger}
}

// WithLock acquires the lock, runs work, and releases the lock on every exit
// path including panics. It returns ErrLocked without invoking work when
// another batch holds an unexpired lock.
func (c *Coordinator) WithLock(ctx context.Context, work func(ctx context.Context) error) error {
	acquired, err := c.kv.SetNX(ctx, LockKey, "locked", c.ttl)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrLocked
	}
	defer func() {
		if derr := c.kv.Delete(ctx, LockKey); derr != nil {
			// The TTL still bounds the damage; the next batch waits it out.
			c.logger.Warn("release scan lock failed", zap.Error(derr))
		}
	}()
	return work(ctx)
}
