package moderation

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker with an in-process map, for single-process
// deployments and tests. Expired entries are reclaimed lazily on the next
// acquire attempt.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewMemoryLocker builds an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time), clock: time.Now}
}

// TryAcquire takes the key if absent or expired.
func (l *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if deadline, ok := l.held[key]; ok && now.Before(deadline) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

// Release frees the key.
func (l *MemoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
