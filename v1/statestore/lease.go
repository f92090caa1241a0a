package statestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	// ErrLeaseHeld is returned when another instance owns the state key.
	ErrLeaseHeld = errors.New("statestore: state key owned by another instance")
	// ErrLeaseLost is returned when ownership expired or was taken over.
	ErrLeaseLost = errors.New("statestore: state key ownership lost")
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

// Lease marks one process as the owner of a Redis-backed state key. Two
// daemons sharing a key would drive different motors from one record.
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
	logger *slog.Logger
}

// Lease returns an unacquired ownership lease on the store's key.
func (r *Redis) Lease(ttl time.Duration, logger *slog.Logger) *Lease {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lease{
		client: r.client,
		key:    r.key + ":owner",
		token:  uuid.NewString(),
		ttl:    ttl,
		logger: logger,
	}
}

// Key returns the Redis key holding the owner token.
func (l *Lease) Key() string { return l.key }

// Acquire claims the key without waiting.
func (l *Lease) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return mapRedisErr(err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLeaseHeld, l.key)
	}
	return nil
}

// Keep refreshes the lease every third of its TTL until ctx is done, then
// releases it. It returns ErrLeaseLost if the token no longer matches.
func (l *Lease) Keep(ctx context.Context) error {
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			rctx, cancel := context.WithTimeout(context.Background(), defaultRedisOpTimeout)
			defer cancel()
			if err := l.Release(rctx); err != nil {
				l.logger.Warn("doorlock: lease release failed", "key", l.key, "error", err)
			}
			return ctx.Err()
		case <-t.C:
			n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				l.logger.Warn("doorlock: lease refresh failed", "key", l.key, "error", err)
				continue
			}
			if n == 0 {
				return fmt.Errorf("%w: %s", ErrLeaseLost, l.key)
			}
		}
	}
}

// Release frees the key if this lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	if err == redis.Nil {
		err = nil
	}
	return mapRedisErr(err)
}
