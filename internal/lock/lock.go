// Package lock provides a best-effort run lock so that overlapping retention
// sweeps (for example two cron hosts firing at once) do not process the same
// rows concurrently. Correctness does not depend on it: every purge is guarded
// by its own transaction and state check.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another holder owns the lock.
var ErrHeld = errors.New("lock held by another process")

// Release frees a lock obtained from Acquire.
type Release func(ctx context.Context) error

// Locker acquires named locks with a TTL.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Release, error)
}

// Noop always succeeds. Used when no Redis address is configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// redisClient is the subset of the go-redis client used here.
type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Redis implements Locker with SET NX PX and a compare-and-delete release.
type Redis struct {
	client redisClient
	prefix string
}

// releaseScript deletes the key only if it still holds our token, so a holder
// whose TTL expired cannot free a lock taken over by someone else.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// NewRedisClient connects to addr (host:port).
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
}

// NewRedis returns a Locker over client, namespacing keys with prefix.
func NewRedis(client redisClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (Release, error) {
	key := r.prefix + name
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return func(ctx context.Context) error {
		return r.client.Eval(ctx, releaseScript, []string{key}, token).Err()
	}, nil
}
