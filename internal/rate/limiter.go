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
	MaxCodeRequests     int
	MaxCodeRequestsByIP int
	CodeRequestWindow   time.Duration
	MaxLoginFailures    int
	LoginCooldown       time.Duration
}

// Limiter enforces per-email and per-IP limits on code requests and failed
// password logins using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// AllowCodeRequest counts one code request for email and ip and returns
// ErrRateLimited once either window is over budget. A zero budget disables
// that throttle.
func (l *Limiter) AllowCodeRequest(ctx context.Context, email, ip string) error {
	if l.config.MaxCodeRequests > 0 {
		count, err := l.incrementWithTTL(ctx, codeEmailKey(email), l.config.CodeRequestWindow)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxCodeRequests) {
			return ErrRateLimited
		}
	}

	if l.config.MaxCodeRequestsByIP > 0 && ip != "" {
		count, err := l.incrementWithTTL(ctx, codeIPKey(ip), l.config.CodeRequestWindow)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxCodeRequestsByIP) {
			return ErrRateLimited
		}
	}

	return nil
}

// CheckLogin returns ErrRateLimited while the email is locked out.
func (l *Limiter) CheckLogin(ctx context.Context, email string) error {
	if l.config.MaxLoginFailures <= 0 {
		return nil
	}
	count, err := l.redis.Get(ctx, loginKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxLoginFailures) {
		return ErrRateLimited
	}
	return nil
}

// RecordLoginFailure counts a failed password login.
func (l *Limiter) RecordLoginFailure(ctx context.Context, email string) error {
	if l.config.MaxLoginFailures <= 0 {
		return nil
	}
	_, err := l.incrementWithTTL(ctx, loginKey(email), l.config.LoginCooldown)
	return err
}

// ResetLogin clears the failed-login counter after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, loginKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: only the first hit sets the TTL.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func codeEmailKey(email string) string { return "ro:" + email }

func codeIPKey(ip string) string { return "roi:" + ip }

func loginKey(email string) string { return "al:" + email }
