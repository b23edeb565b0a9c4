// Package ratelimit implements a fixed-window rate limiter, windows
// aligned via a "(now / window_seconds) * window_seconds" calculation.
package ratelimit

import (
	"context"
	"fmt"

	"mailflow/internal/exterrors"
)

// bufferSeconds is the TTL buffer added past the window end (one hour).
const bufferSeconds = 3600

// Limiter is the rate-limiter capability: an atomic increment-and-check
// over a sliding fixed window.
type Limiter interface {
	// Increment adds one to sender's counter for the window containing
	// now, creating it with TTL = window end + bufferSeconds if absent,
	// and returns the counter's new value.
	Increment(ctx context.Context, sender string, windowStart, ttlAt int64) (int64, error)
}

// WindowStart aligns unixNow onto a windowSeconds boundary: a sliding
// fixed window aligned on window-seconds boundaries, not "last N seconds
// from now".
func WindowStart(unixNow, windowSeconds int64) int64 {
	if windowSeconds <= 0 {
		return unixNow
	}
	return (unixNow / windowSeconds) * windowSeconds
}

// Check increments sender's
// counter for the current window and fails with KindRateLimit
// (non-retriable) if the new count exceeds limit.
func Check(ctx context.Context, l Limiter, sender string, limit int, windowSeconds int64, unixNow int64) error {
	windowStart := WindowStart(unixNow, windowSeconds)
	ttlAt := windowStart + windowSeconds + bufferSeconds

	count, err := l.Increment(ctx, sender, windowStart, ttlAt)
	if err != nil {
		return exterrors.Wrap(exterrors.KindRateLimit, "rate limit check failed", err)
	}
	if count > int64(limit) {
		return exterrors.New(exterrors.KindRateLimit, fmt.Sprintf("sender %s exceeded rate limit: %d in %d seconds (limit %d)", sender, count, windowSeconds, limit))
	}
	return nil
}
