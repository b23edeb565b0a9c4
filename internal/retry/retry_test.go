package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailflow/internal/exterrors"
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:   maxRetries,
		BaseDelay:    1 * time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0.1,
	}
}

func TestDoExhaustsRetriesOnPersistentRetriableError(t *testing.T) {
	// P9: a retriable error returned N+1 times in a row produces exactly N
	// retries, i.e. N+1 total attempts.
	const maxRetries = 5
	attempts := 0
	err := Do(context.Background(), fastConfig(maxRetries), func(ctx context.Context) error {
		attempts++
		return exterrors.New(exterrors.KindStorage, "transient")
	})

	require.Error(t, err)
	assert.Equal(t, maxRetries+1, attempts)
}

func TestDoStopsAtFirstNonRetriableError(t *testing.T) {
	// P10: a non-retriable error produces exactly one attempt.
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		return exterrors.New(exterrors.KindValidation, "bad input")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return exterrors.New(exterrors.KindQueue, "throttled")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoRespectsExpiredDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()
	time.Sleep(5 * time.Millisecond)

	attempts := 0
	err := Do(ctx, fastConfig(5), func(ctx context.Context) error {
		attempts++
		return exterrors.New(exterrors.KindRelay, "slow relay")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "expired deadline should surrender after the first attempt")
}

func TestDoPropagatesPlainErrorsAsNonRetriable(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		return errors.New("unclassified failure")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
