// Package distlock provides short-lived locks keyed by string. Redis is used
// when configured so locks hold across server replicas; otherwise locks are
// local to the process.
package distlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotOwner is returned when releasing or extending a lock this instance
// no longer holds.
var ErrNotOwner = errors.New("lock not held")

// DistLock is a single-owner lock. One instance represents one would-be
// owner; use a separate instance per goroutine.
type DistLock interface {
	// Acquire tries once to take the lock and reports whether it succeeded.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this instance still holds it.
	Release(ctx context.Context) error
}

// NewLock returns a Redis lock when client is non-nil, otherwise a
// process-local lock.
func NewLock(client redis.Cmdable, key string, ttl time.Duration) DistLock {
	if client != nil {
		return NewRedisLock(client, key, ttl)
	}
	return NewLocalLock(key, ttl)
}

// local holds process-wide lock expiry by key.
var local = struct {
	sync.Mutex
	held map[string]localEntry
}{held: make(map[string]localEntry)}

type localEntry struct {
	owner   *LocalLock
	expires time.Time
}

// LocalLock is a DistLock scoped to this process, with the same TTL
// semantics as RedisLock.
type LocalLock struct {
	key string
	ttl time.Duration
	now func() time.Time
}

// NewLocalLock creates a process-local lock.
func NewLocalLock(key string, ttl time.Duration) *LocalLock {
	return &LocalLock{key: lockKey(key), ttl: ttl, now: time.Now}
}

func (l *LocalLock) Acquire(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	local.Lock()
	defer local.Unlock()
	now := l.now()
	if e, ok := local.held[l.key]; ok && e.owner != l && now.Before(e.expires) {
		return false, nil
	}
	local.held[l.key] = localEntry{owner: l, expires: now.Add(l.ttl)}
	return true, nil
}

func (l *LocalLock) Release(ctx context.Context) error {
	local.Lock()
	defer local.Unlock()
	e, ok := local.held[l.key]
	if !ok || e.owner != l {
		return ErrNotOwner
	}
	delete(local.held, l.key)
	return nil
}

func lockKey(key string) string { return "lock:" + key }
