package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 20 * time.Second

// OrderKey builds the lock key guarding capture attempts for a single order.
func OrderKey(orderID uuid.UUID) string {
	return "capture:order:" + orderID.String()
}

// Locker provides a Redis-backed mutual exclusion primitive. Capture uses it
// so that only one goroutine per order talks to the payment provider at a time.
type Locker struct {
	R       *redis.Client
	Backoff time.Duration
}

// WithLock runs fn while holding the lock identified by key. The lock is
// released when fn returns, regardless of its error. Acquisition retries until
// the context is cancelled.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	token := uuid.NewString()
	backoff := l.Backoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}

	for {
		acquired, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if acquired {
			defer l.release(context.Background(), key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// release deletes the key only when it still carries our token, so an expired
// lock reacquired by another holder is never removed from under them.
func (l Locker) release(ctx context.Context, key, token string) {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := l.R.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
