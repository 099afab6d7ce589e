package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained is returned when the lock is still held by another
// worker after the wait budget is spent.
var ErrLockNotObtained = errors.New("platform/cache: lock not obtained")

// LockKeyPrefix namespaces code derivation locks.
const LockKeyPrefix = "provision:code:"

// Locker serializes code derivation per employee type across processes.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewLocker builds a Locker. ttl bounds how long a crashed holder blocks
// others; wait bounds how long Lock retries before giving up.
func NewLocker(rdb *redis.Client, ttl, wait time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &Locker{
		client: redislock.New(rdb),
		ttl:    ttl,
		wait:   wait,
		retry:  50 * time.Millisecond,
	}
}

// Lock obtains the lock for key and returns its release func.
func (l *Locker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	opts := &redislock.Options{}
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
		opts.RetryStrategy = redislock.LinearBackoff(l.retry)
	}

	lock, err := l.client.Obtain(ctx, LockKeyPrefix+key, l.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("platform/cache: obtain %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("platform/cache: release %s: %w", key, err)
		}
		return nil
	}, nil
}
