package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan-platform/castellan/internal/shared"
)

func TestUserLockKey(t *testing.T) {
	assert.Equal(t, "moderation:user:42:lock", UserLockKey(42))
}

func TestMemoryLockerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	mutex := NewMutex(NewMemoryLocker(), time.Minute)

	require.NoError(t, mutex.Acquire(ctx, 7))
	assert.ErrorIs(t, mutex.Acquire(ctx, 7), shared.ErrLockBusy)

	// A different user id is an independent lock.
	require.NoError(t, mutex.Acquire(ctx, 9))

	require.NoError(t, mutex.Release(ctx, 7))
	assert.NoError(t, mutex.Acquire(ctx, 7))
}

func TestMemoryLockerExpiry(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker()
	now := time.Now()
	locker.clock = func() time.Time { return now }

	ok, err := locker.TryAcquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = locker.TryAcquire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(2 * time.Second)
	ok, err = locker.TryAcquire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLockerConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	mutex := NewMutex(NewMemoryLocker(), time.Minute)

	const attempts = 32
	var wg sync.WaitGroup
	acquired := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mutex.Acquire(ctx, 7); err == nil {
				acquired <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(acquired)

	count := 0
	for range acquired {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestRedisLockerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mutex := NewMutex(NewRedisLocker(client), time.Minute)

	require.NoError(t, mutex.Acquire(ctx, 7))
	assert.ErrorIs(t, mutex.Acquire(ctx, 7), shared.ErrLockBusy)

	require.NoError(t, mutex.Release(ctx, 7))
	assert.NoError(t, mutex.Acquire(ctx, 7))
}

func TestRedisLockerTTLExpires(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mutex := NewMutex(NewRedisLocker(client), time.Second)

	require.NoError(t, mutex.Acquire(ctx, 7))
	mr.FastForward(2 * time.Second)
	assert.NoError(t, mutex.Acquire(ctx, 7))
}

func TestRedisLockerReleaseIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	first := NewRedisLocker(client)
	second := NewRedisLocker(client)

	ok, err := first.TryAcquire(ctx, UserLockKey(7), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A non-holder release is a harmless no-op.
	require.NoError(t, second.Release(ctx, UserLockKey(7)))

	ok, err = second.TryAcquire(ctx, UserLockKey(7), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx, UserLockKey(7)))
	ok, err = second.TryAcquire(ctx, UserLockKey(7), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
