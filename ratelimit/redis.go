package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a [Limiter] backed by Redis counters with a window TTL, for
// deployments where admission state must be shared across instances.
// Unlike [Memory] it does not refill continuously: the whole window's
// quota returns when the counter key expires.
type Redis struct {
	client redis.UniversalClient
	config Config
	prefix string
}

// NewRedis builds a Redis-backed limiter. prefix defaults to "kwrl".
func NewRedis(client redis.UniversalClient, cfg Config, prefix string) (*Redis, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "kwrl"
	}
	return &Redis{client: client, config: cfg, prefix: prefix}, nil
}

func (r *Redis) key(identifier, action string) string {
	return r.prefix + ":" + bucketKey(identifier, action)
}

// Check implements [Limiter].
func (r *Redis) Check(ctx context.Context, identifier, action string) (Result, error) {
	key := r.key(identifier, action)

	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	count, err := getCmd.Int()
	if errors.Is(err, redis.Nil) {
		return Result{
			Allowed:   true,
			Remaining: r.config.Capacity,
			ResetAt:   time.Now(),
		}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = r.config.Window
	}

	res := Result{
		Allowed:   count < r.config.Capacity,
		Remaining: r.config.Capacity - count,
		ResetAt:   time.Now().Add(ttl),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}

// Consume implements [Limiter]. The window TTL is armed when the counter
// is first created, so a burst cannot extend its own window.
func (r *Redis) Consume(ctx context.Context, identifier, action string) error {
	key := r.key(identifier, action)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count == 1 {
		if err := r.client.PExpire(ctx, key, r.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	return nil
}

// Reset implements [Limiter].
func (r *Redis) Reset(ctx context.Context, identifier, action string) error {
	if err := r.client.Del(ctx, r.key(identifier, action)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
