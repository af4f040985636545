// Package locker serializes reservation attempts per slot with a bounded
// wait. The storage layer's row lock remains the correctness backstop; the
// locker exists so a contended attempt fails fast with a retryable error
// instead of queueing behind the winner.
package locker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when the lock could not be taken within the
// caller's wait budget. Retryable.
var ErrNotAcquired = errors.New("lock not acquired within wait")

// Locker acquires a named lock, waiting at most wait, holding it at most
// ttl. The returned release function is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, key string, wait, ttl time.Duration) (release func(), err error)
}

// Local is an in-process locker for single-node deployments and tests.
type Local struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]time.Time), clock: time.Now}
}

// Acquire polls for the key until it is free, the wait elapses, or the
// context is cancelled. Expired holders are evicted, mirroring the TTL
// behavior of the Redis locker.
func (l *Local) Acquire(ctx context.Context, key string, wait, ttl time.Duration) (func(), error) {
	deadline := l.clock().Add(wait)
	for {
		if l.tryLock(key, ttl) {
			var once sync.Once
			return func() { once.Do(func() { l.unlock(key) }) }, nil
		}
		if l.clock().After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (l *Local) tryLock(key string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if expiry, ok := l.held[key]; ok && now.Before(expiry) {
		return false
	}
	l.held[key] = now.Add(ttl)
	return true
}

func (l *Local) unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
