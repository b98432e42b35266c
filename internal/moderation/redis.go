package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still holds our owner token,
// so a lock that expired and was re-acquired elsewhere is never released by
// the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on a shared Redis instance, giving
// cluster-wide mutual exclusion for multi-process deployments.
type RedisLocker struct {
	client *redis.Client
	owner  string
}

// NewRedisLocker builds a locker with a per-process owner token.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, owner: uuid.NewString()}
}

// TryAcquire sets the key if absent with the given TTL.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("moderation: redis setnx: %w", err)
	}
	return ok, nil
}

// Release deletes the key when this process still owns it.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key}, l.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("moderation: redis release: %w", err)
	}
	return nil
}
