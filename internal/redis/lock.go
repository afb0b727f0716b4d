package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("care provider lock not acquired")

// Locker guards the booking critical section for one care provider.
// Every create/reschedule for a provider serializes on this lock so
// two concurrent requests cannot both observe a slot as free.
type Locker interface {
	WithProviderLock(ctx context.Context, careProviderID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisProviderLocker struct {
	client   *redis.Client
	ttl      time.Duration
	attempts int
	backoff  time.Duration
}

// NewRedisProviderLocker creates a locker backed by a per-provider
// Redis key. Acquisition is a bounded wait: at most attempts SetNX
// tries spaced by backoff, then ErrLockNotAcquired.
func NewRedisProviderLocker(client *redis.Client, ttl time.Duration, attempts int, backoff time.Duration) Locker {
	if attempts < 1 {
		attempts = 1
	}
	return &redisProviderLocker{
		client:   client,
		ttl:      ttl,
		attempts: attempts,
		backoff:  backoff,
	}
}

func (l *redisProviderLocker) WithProviderLock(ctx context.Context, careProviderID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:care-provider:%s", careProviderID.String())
	token := uuid.NewString()

	acquired := false
	for attempt := 0; attempt < l.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.backoff):
			}
		}

		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire provider lock: %w", err)
		}
		if ok {
			acquired = true
			break
		}
	}
	if !acquired {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisProviderLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release provider lock: %w", err)
	}
	return nil
}
