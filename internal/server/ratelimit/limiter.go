// Package ratelimit counts failed logins in Redis and refuses further
// attempts for a key once its budget is spent.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/common"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps any failure talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

type Config struct {
	MaxAttempts int
	Cooldown    time.Duration
	Prefix      string
}

// Limiter is a fixed-window failure counter. The window opens on the first
// failure and lasts Cooldown; a success clears it.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "pwkeeper:login"
	}
	return &Limiter{redis: client, config: cfg}
}

// Allow reports common.ErrorRateLimited when key already has MaxAttempts
// failures in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return common.ErrorRateLimited
	}
	return nil
}

// Fail records one failed attempt.
func (l *Limiter) Fail(ctx context.Context, key string) error {
	k := l.key(key)
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.config.Cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the failures counted for key in the current window.
func (l *Limiter) Attempts(ctx context.Context, key string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// key hashes the identifier so email addresses never land in Redis.
func (l *Limiter) key(id string) string {
	sum := sha256.Sum256([]byte(id))
	return l.config.Prefix + ":" + hex.EncodeToString(sum[:16])
}

// Ping checks the connection at startup.
func (l *Limiter) Ping(ctx context.Context) error {
	if err := l.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
