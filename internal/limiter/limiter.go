package limiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned when a budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const (
	defaultMaxAttempts = 5
	defaultCooldown    = 15 * time.Minute
	defaultPrefix      = "boxum:rl"
)

// Config holds limiter thresholds. Zero values fall back to defaults
// (5 attempts per 15 minutes).
type Config struct {
	Prefix           string
	EnableIPThrottle bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	MaxMFAAttempts   int
	MFACooldown      time.Duration
}

// Limiter counts failed logins per email (and optionally per IP) and failed
// MFA codes per user, using fixed-window Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by redisClient.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.MaxLoginAttempts <= 0 {
		cfg.MaxLoginAttempts = defaultMaxAttempts
	}
	if cfg.LoginCooldown <= 0 {
		cfg.LoginCooldown = defaultCooldown
	}
	if cfg.MaxMFAAttempts <= 0 {
		cfg.MaxMFAAttempts = defaultMaxAttempts
	}
	if cfg.MFACooldown <= 0 {
		cfg.MFACooldown = defaultCooldown
	}
	return &Limiter{redis: redisClient, config: cfg}
}

// CheckLogin fails with ErrRateLimited once the email or IP budget is spent.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	if err := l.check(ctx, l.loginKey(email), l.config.MaxLoginAttempts); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.check(ctx, l.ipKey(ip), l.config.MaxLoginAttempts)
	}
	return nil
}

// RecordLoginFailure counts one failed password attempt.
func (l *Limiter) RecordLoginFailure(ctx context.Context, email, ip string) error {
	if _, err := l.incrementWithTTL(ctx, l.loginKey(email), l.config.LoginCooldown); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.incrementWithTTL(ctx, l.ipKey(ip), l.config.LoginCooldown); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the per-email counter after a successful password check.
// The IP counter is left alone so one good account cannot launder a sprayer.
func (l *Limiter) ResetLogin(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, l.loginKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckMFA fails with ErrRateLimited once the user's code budget is spent.
func (l *Limiter) CheckMFA(ctx context.Context, userID string) error {
	return l.check(ctx, l.mfaKey(userID), l.config.MaxMFAAttempts)
}

// RecordMFAFailure counts one wrong second-factor code.
func (l *Limiter) RecordMFAFailure(ctx context.Context, userID string) error {
	_, err := l.incrementWithTTL(ctx, l.mfaKey(userID), l.config.MFACooldown)
	return err
}

// ResetMFA clears the user's code counter.
func (l *Limiter) ResetMFA(ctx context.Context, userID string) error {
	if err := l.redis.Del(ctx, l.mfaKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) check(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set by the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}

func (l *Limiter) loginKey(email string) string {
	return l.config.Prefix + ":login:" + digest(strings.ToLower(strings.TrimSpace(email)))
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.Prefix + ":ip:" + ip
}

func (l *Limiter) mfaKey(userID string) string {
	return l.config.Prefix + ":mfa:" + userID
}

// digest keeps raw email addresses out of Redis key space.
func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
