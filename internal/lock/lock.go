// Package lock provides named mutual exclusion, backed by Redis across
// replicas or by an in-process table for single-node runs.
package lock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// ErrNotObtained is returned when a lock is held by someone else.
var ErrNotObtained = errors.New("lock: not obtained")

// Locker acquires named locks. TryLock fails immediately with
// ErrNotObtained when the key is held; Lock waits until ctx is done.
// The returned function releases the lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RedisLocker implements Locker with bsm/redislock.
type RedisLocker struct {
	client  *redislock.Client
	backoff time.Duration
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(rdb redislock.RedisClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), backoff: 50 * time.Millisecond}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return l.obtain(ctx, key, ttl, nil)
}

func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return l.obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.backoff),
	})
}

func (l *RedisLocker) obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (func(), error) {
	lk, err := l.client.Obtain(ctx, key, ttl, opt)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// Use a fresh context: the caller's may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lk.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			slog.Warn("lock release failed", "key", key, "err", err)
		}
	}, nil
}

// LocalLocker implements Locker in-process. The ttl is ignored: a lock
// is held until released.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	default:
		return nil, ErrNotObtained
	}
}

func (l *LocalLocker) Lock(ctx context.Context, key string, _ time.Duration) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ErrNotObtained
	}
}
