package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	Prefix           string
	EnableIPThrottle bool
	MaxAttempts      int
	Window           time.Duration
}

// Limiter enforces per-email and per-IP budgets for failed logins.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by redisClient.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{redis: redisClient, config: cfg}
}

// Check fails with [ErrRateLimited] when either counter is already past the budget.
func (l *Limiter) Check(ctx context.Context, email, ip string) error {
	if err := l.checkCounter(ctx, l.emailKey(email)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.checkCounter(ctx, l.ipKey(ip))
	}
	return nil
}

// RecordFailure counts one failed attempt. It returns [ErrRateLimited] when the
// attempt pushed a counter past the budget.
func (l *Limiter) RecordFailure(ctx context.Context, email, ip string) error {
	count, err := l.incrementWithTTL(ctx, l.emailKey(email))
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, l.ipKey(ip))
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// Reset clears the email counter after a successful login. The IP counter is
// left alone so one valid account cannot launder attempts against others.
func (l *Limiter) Reset(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, l.emailKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the failure count for email in the current window.
func (l *Limiter) Attempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.emailKey(email)).Int64()
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

func (l *Limiter) emailKey(email string) string {
	return l.config.Prefix + ":login:e:" + strings.ToLower(strings.TrimSpace(email))
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.Prefix + ":login:ip:" + ip
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
