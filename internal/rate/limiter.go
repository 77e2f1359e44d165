package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	LoginMaxAttempts int
	LoginWindow      time.Duration

	EnableGlobal bool
	GlobalHourly int
	GlobalDaily  int
}

// Limiter enforces the login window and the global hourly/daily budgets per
// client key using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// AdmitLogin spends one login attempt for the client key and reports whether
// the request may proceed. The attempt is recorded regardless of the later
// outcome, so failed credentials cannot bypass the budget. Rejections are
// *LimitedError values wrapping [ErrRateLimited].
func (l *Limiter) AdmitLogin(ctx context.Context, clientKey string) error {
	if err := l.spendWindow(ctx, loginKey(clientKey), l.config.LoginMaxAttempts, l.config.LoginWindow); err != nil {
		return err
	}

	return l.AdmitGlobal(ctx, clientKey)
}

// AdmitGlobal spends one request from the client's hourly and daily budgets.
// Callers guarding non-login operations use this directly.
func (l *Limiter) AdmitGlobal(ctx context.Context, clientKey string) error {
	if !l.config.EnableGlobal {
		return nil
	}

	if err := l.spendWindow(ctx, hourlyKey(clientKey), l.config.GlobalHourly, time.Hour); err != nil {
		return err
	}

	return l.spendWindow(ctx, dailyKey(clientKey), l.config.GlobalDaily, 24*time.Hour)
}

// Attempts returns the current login-window counter for a client key.
// Missing keys return zero.
func (l *Limiter) Attempts(ctx context.Context, clientKey string) (int, error) {
	count, err := l.redis.Get(ctx, loginKey(clientKey)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) spendWindow(ctx context.Context, key string, max int, window time.Duration) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: the TTL starts with the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(max) {
		return &LimitedError{RetryAfter: l.retryAfter(ctx, key, window)}
	}

	return nil
}

func (l *Limiter) retryAfter(ctx context.Context, key string, window time.Duration) time.Duration {
	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return window
	}
	return ttl
}

func loginKey(clientKey string) string {
	return "vrl:login:" + clientKey
}

func hourlyKey(clientKey string) string {
	return "vrl:hour:" + clientKey
}

func dailyKey(clientKey string) string {
	return "vrl:day:" + clientKey
}
