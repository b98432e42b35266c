// Package moderation provides the short-lived mutual-exclusion lock that
// serializes user state transitions (block/restore/approve) so concurrent
// moderation requests cannot race past each other's precondition checks.
package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/castellan-platform/castellan/internal/shared"
)

// DefaultTTL bounds how long an unreleased lock can linger.
const DefaultTTL = 30 * time.Second

// Locker is an atomic acquire-if-absent lock store. TryAcquire returns
// false without blocking when the key is already held; Release frees a key
// before its TTL expires.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// UserLockKey builds the lock key for moderation critical sections.
func UserLockKey(userID int64) string {
	return fmt.Sprintf("moderation:user:%d:lock", userID)
}

// Mutex is a keyed non-blocking lock over a Locker. At most one acquired
// lock exists per user id; competing acquires fail fast with ErrLockBusy
// and retrying is left to the caller.
type Mutex struct {
	locker Locker
	ttl    time.Duration
}

// NewMutex builds a Mutex. A non-positive ttl falls back to DefaultTTL.
func NewMutex(locker Locker, ttl time.Duration) *Mutex {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Mutex{locker: locker, ttl: ttl}
}

// Acquire takes the lock for the given user id or fails with ErrLockBusy.
func (m *Mutex) Acquire(ctx context.Context, userID int64) error {
	ok, err := m.locker.TryAcquire(ctx, UserLockKey(userID), m.ttl)
	if err != nil {
		return fmt.Errorf("moderation: acquire lock: %w", err)
	}
	if !ok {
		return shared.ErrLockBusy
	}
	return nil
}

// Release frees the lock for the given user id. Safe to call on an
// already-expired lock.
func (m *Mutex) Release(ctx context.Context, userID int64) error {
	return m.locker.Release(ctx, UserLockKey(userID))
}
