// Package ratelimiter implements token-bucket rate limiting with pluggable
// storage: in-memory for a single node, Redis when limits must be shared
// across instances.
package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("invalid rate limiter configuration")

// Config defines the token bucket shape.
type Config struct {
	// Capacity is the burst limit: the maximum tokens a bucket holds.
	Capacity int
	// RefillRate is how many tokens are added per RefillInterval.
	RefillRate int
	// RefillInterval is the refill cadence.
	RefillInterval time.Duration
}

func (c Config) validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidConfig)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("%w: refill rate must be positive", ErrInvalidConfig)
	}
	if c.RefillInterval <= 0 {
		return fmt.Errorf("%w: refill interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// Result reports the outcome of one rate limit check.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allowed reports whether the request may proceed.
func (r Result) Allowed() bool { return r.Remaining >= 0 }

// RetryAfter returns how long the caller should wait, zero when allowed.
func (r Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Store persists bucket state.
type Store interface {
	// Take consumes one token for key, returning the remaining count
	// (negative when the bucket is exhausted) and the next refill time.
	Take(ctx context.Context, key string, cfg Config) (remaining int, resetAt time.Time, err error)
}

// Limiter is a token bucket over a Store.
type Limiter struct {
	store Store
	cfg   Config
}

// New creates a limiter, validating the configuration up front.
func New(store Store, cfg Config) (*Limiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Limiter{store: store, cfg: cfg}, nil
}

// Allow consumes one token for key.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	remaining, resetAt, err := l.store.Take(ctx, key, l.cfg)
	if err != nil {
		return Result{}, err
	}
	return Result{Limit: l.cfg.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}
