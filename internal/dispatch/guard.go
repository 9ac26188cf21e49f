package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/cdp-messenger/internal/pkg/distlock"
	"github.com/ignite/cdp-messenger/internal/pkg/logger"
)

const defaultGuardTTL = 5 * time.Minute

// Guard serializes dispatches per test id.
type Guard interface {
	// Acquire reports whether the caller may dispatch testID. When ok is
	// true, release must be called once the dispatch finishes.
	Acquire(ctx context.Context, testID string) (release func(), ok bool, err error)
}

// LockGuard is a Guard over distlock. With a Redis client the guard holds
// across replicas; without one it is process-local.
type LockGuard struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewLockGuard creates a guard. Pass a nil client for a process-local guard.
// A non-positive ttl defaults to five minutes.
func NewLockGuard(client redis.Cmdable, ttl time.Duration) *LockGuard {
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &LockGuard{client: client, ttl: ttl}
}

func (g *LockGuard) Acquire(ctx context.Context, testID string) (func(), bool, error) {
	lock := distlock.NewLock(g.client, "dispatch:"+testID, g.ttl)
	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		return func() {}, false, err
	}
	return func() {
		// Release on a fresh context: the dispatch context may already be done.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(ctx); err != nil && !errors.Is(err, distlock.ErrNotOwner) {
			logger.Warn("dispatch guard release failed", "test_id", testID, "error", err)
		}
	}, true, nil
}
