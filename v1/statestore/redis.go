package statestore

import (
	"context"
	stdErrors "errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
)

const (
	defaultRedisKey       = "doorlock:state"
	defaultRedisOpTimeout = 5 * time.Second
)

// Redis implements Store using a Redis backend.
type Redis struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithKey sets the key the state is stored under.
func WithKey(key string) RedisOption {
	return func(r *Redis) { r.key = key }
}

// WithTimeout sets the operation timeout for Redis calls.
func WithTimeout(d time.Duration) RedisOption {
	return func(r *Redis) { r.timeout = d }
}

// NewRedis returns a Redis store using the provided client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, key: defaultRedisKey, timeout: defaultRedisOpTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load implements Store.Load.
func (r *Redis) Load(ctx context.Context) (lock.State, bool, error) {
	if err := ctx.Err(); err != nil {
		return lock.Unlocked, false, mapRedisErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.client.Get(cctx, r.key).Result()
	if err == redis.Nil {
		return lock.Unlocked, false, nil
	}
	if err != nil {
		return lock.Unlocked, false, mapRedisErr(err)
	}
	s, err := lock.ParseState(v)
	if err != nil {
		return lock.Unlocked, false, err
	}
	return s, true, nil
}

// Save implements Store.Save.
func (r *Redis) Save(ctx context.Context, s lock.State) error {
	if err := ctx.Err(); err != nil {
		return mapRedisErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Set(cctx, r.key, s.String(), 0).Err(); err != nil {
		return mapRedisErr(err)
	}
	return nil
}

func mapRedisErr(err error) error {
	switch {
	case stdErrors.Is(err, context.DeadlineExceeded):
		return dlerrors.ErrTimeout
	case stdErrors.Is(err, redis.ErrClosed):
		return dlerrors.ErrConnectionClosed
	}
	return err
}
