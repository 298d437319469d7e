package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Locker is the coordination primitive: an atomic set-if-absent with
// expiry. Acquisition never blocks; a false return means skip this tick.
// Locks here are advisory optimizations; the status CAS on the task row
// is the real guard.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// RedisLocker backs the Locker with Redis SETNX+TTL for multi-instance
// deployments. The stored value is the owning instance name so a lock is
// only released by its holder.
type RedisLocker struct {
	client *redis.Client
	owner  string
	logger *zap.Logger
}

func NewRedisLocker(client *redis.Client, owner string, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{client: client, owner: owner, logger: logger}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	val, err := l.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	if val != l.owner {
		l.logger.Debug("skipping unlock of lock held by another instance",
			zap.String("key", key),
			zap.String("holder", val))
		return nil
	}
	return l.client.Del(ctx, key).Err()
}

// MemoryLocker is a process-local advisory lock for tests and
// single-instance deployments.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]time.Time)}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if expiry, ok := l.held[key]; ok && expiry.After(now) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *MemoryLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
