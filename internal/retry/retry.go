// Package retry implements a generic retry/backoff wrapper: a
// higher-order function over an operation, given a config and the error
// classifier in internal/exterrors. It is deadline-aware: before
// sleeping it checks whether the context is already past its deadline and,
// if so, surrenders the last error as terminal.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"mailflow/internal/exterrors"
)

// Config holds the retry policy's tunables.
type Config struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

// DefaultConfig returns the default retry policy: max-retries=5, base=1s,
// max-delay=5m, jitter-factor=0.1.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   5,
		BaseDelay:    1 * time.Second,
		MaxDelay:     5 * time.Minute,
		JitterFactor: 0.1,
	}
}

// Op is the operation retried. It should itself respect ctx cancellation.
type Op func(ctx context.Context) error

// Do runs op, retrying on retriable errors (per exterrors.Retriable) up to
// cfg.MaxRetries times with exponential backoff and jitter. A non-retriable
// error returns immediately after exactly one attempt (P10). A retriable
// error returned MaxRetries+1 times in a row causes exactly MaxRetries
// retries and then returns the last error (P9).
func Do(ctx context.Context, cfg Config, op Op) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.BaseDelay
	eb.MaxInterval = cfg.MaxDelay
	eb.Multiplier = 2
	// Jitter is applied once, in nextDelay.
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0 // attempt count governs termination, not elapsed time

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !exterrors.Retriable(lastErr) {
			return lastErr
		}

		if attempt >= cfg.MaxRetries {
			return lastErr
		}

		delay := nextDelay(eb, cfg)

		select {
		case <-ctx.Done():
			// Deadline already expired: surrender this attempt's error as
			// terminal rather than starting a sleep we can't complete.
			return lastErr
		default:
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}

// nextDelay asks the backoff generator for the next (unrandomized)
// interval, clamps it to MaxDelay and then applies symmetric jitter once,
// giving "min(base * 2^attempt, max) * (1 ± jitter)".
func nextDelay(eb *backoff.ExponentialBackOff, cfg Config) time.Duration {
	d := eb.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		d = cfg.MaxDelay
	}
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}

	jitter := 1.0 + (rand.Float64()*2-1)*cfg.JitterFactor
	scaled := time.Duration(float64(d) * jitter)
	if scaled < 0 {
		scaled = 0
	}
	return scaled
}
