// Package ratelimit provides fixed-window request limiting keyed by client.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidConfig is returned when a limiter is built with a non-positive
// limit or window.
var ErrInvalidConfig = errors.New("ratelimit: limit and window must be positive")

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the time until the current window resets.
	RetryAfter time.Duration
}

// Limiter admits or rejects requests for a key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Config describes a fixed window.
type Config struct {
	Limit  int
	Window time.Duration
}

func (c Config) validate() error {
	if c.Limit <= 0 || c.Window <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// windowStart aligns now to the start of its window.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

func decide(cfg Config, count int64, start, now time.Time) Decision {
	remaining := max(cfg.Limit-int(count), 0)
	return Decision{
		Allowed:    count <= int64(cfg.Limit),
		Limit:      cfg.Limit,
		Remaining:  remaining,
		RetryAfter: start.Add(cfg.Window).Sub(now),
	}
}
