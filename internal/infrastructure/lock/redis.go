package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"storecount/internal/domain/counting"
	"storecount/pkg/logger"
)

var _ counting.Locker = (*Redis)(nil)

// DefaultTTL bounds how long a crashed holder can block a session's close.
const DefaultTTL = 2 * time.Minute

// obtainer is the part of redislock.Client the locker uses.
type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (heldLock, error)
}

type heldLock interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
	Release(ctx context.Context) error
}

type redislockClient struct {
	client *redislock.Client
}

func (c redislockClient) Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (heldLock, error) {
	lk, err := c.client.Obtain(ctx, key, ttl, opt)
	if err != nil {
		return nil, err
	}
	return lk, nil
}

// Redis is a distributed Locker. The lock is refreshed while held so a long
// reconciliation does not outlive its TTL.
type Redis struct {
	client obtainer
	ttl    time.Duration
	prefix string
}

// NewRedis creates a Redis-backed locker. A non-positive ttl selects DefaultTTL.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return newRedis(redislockClient{client: redislock.New(rdb)}, ttl)
}

func newRedis(client obtainer, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client: client,
		ttl:    ttl,
		prefix: "storecount:lock:",
	}
}

// TryLock implements counting.Locker.
func (r *Redis) TryLock(ctx context.Context, key string) (func(), bool, error) {
	lk, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtain redis lock %s: %w", key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(lk, key, stop, done)

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			close(stop)
			<-done
			// The request context may already be cancelled.
			if err := lk.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn(ctx, "failed to release redis lock", "key", key, "error", err)
			}
		})
	}
	return unlock, true, nil
}

func (r *Redis) keepAlive(lk heldLock, key string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := lk.Refresh(context.Background(), r.ttl, nil); err != nil {
				logger.Warn(context.Background(), "failed to refresh redis lock", "key", key, "error", err)
				return
			}
		}
	}
}
