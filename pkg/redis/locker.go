package redis

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"

	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
)

const lockReleaseTimeout = 2 * time.Second

// Locker serializes writers of one resource across processes.
type Locker interface {
	Lock(ctx context.Context, scope, id string) (release func(), err error)
}

type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// RedisLocker implements Locker on top of redislock. Obtain retries at a fixed
// interval until the caller's context expires.
type RedisLocker struct {
	client   obtainer
	keys     func(scope, id string) string
	ttl      time.Duration
	interval time.Duration
	logg     *logger.Logger
}

// NewLocker builds a Locker bound to the client's redis connection.
func NewLocker(c *Client, ttl, retryInterval time.Duration, logg *logger.Logger) (*RedisLocker, error) {
	if c == nil || c.locker == nil {
		return nil, errors.New("redis client required")
	}
	return newLocker(c.locker, c.LockKey, ttl, retryInterval, logg), nil
}

func newLocker(client obtainer, keys func(scope, id string) string, ttl, interval time.Duration, logg *logger.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &RedisLocker{client: client, keys: keys, ttl: ttl, interval: interval, logg: logg}
}

// Lock blocks until the lock is held or ctx ends. A lock that cannot be obtained
// in time surfaces as a retryable CONFLICT.
func (l *RedisLocker) Lock(ctx context.Context, scope, id string) (func(), error) {
	key := l.keys(scope, id)
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.interval),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "resource busy, retry the request")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "obtain lock")
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) && l.logg != nil {
			l.logg.Warn(l.logg.WithField(ctx, "lock_key", key), "lock release failed")
		}
	}, nil
}
