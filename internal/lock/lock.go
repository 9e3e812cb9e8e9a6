// Package lock serializes scrape runs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by TryAcquire when another run owns the lock.
var ErrHeld = errors.New("lock is held")

// Locker grants at most one holder at a time. TryAcquire never blocks waiting
// for the holder; the returned release func is safe to call once.
type Locker interface {
	TryAcquire(ctx context.Context) (release func(), err error)
}

// Local is an in-process lock for single-instance deployments.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) TryAcquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.mu.TryLock() {
		return nil, ErrHeld
	}

	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}

// RedisClient interface for Redis operations (for testing)
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only while it still holds our token, so a
// run that outlived its TTL cannot release a successor's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Redis is a lock shared by every instance talking to the same Redis.
type Redis struct {
	client RedisClient
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis creates a lock on key. ttl must exceed the longest expected run.
func NewRedis(client RedisClient, key string, ttl time.Duration, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.With("component", "run_lock", "key", key),
	}
}

func (r *Redis) TryAcquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled by now.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			r.release(releaseCtx, token)
		})
	}, nil
}

// release only logs. A key left behind blocks every trigger until the TTL
// runs out.
func (r *Redis) release(ctx context.Context, token string) {
	deleted, err := r.client.Eval(ctx, releaseScript, []string{r.key}, token).Int64()
	switch {
	case err != nil:
		r.logger.Error("failed to release run lock", "ttl", r.ttl, "error", err)
	case deleted == 0:
		r.logger.Warn("run lock expired before release", "ttl", r.ttl)
	}
}
