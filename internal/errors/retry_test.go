package errors

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:   max,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetryWithResult_SucceedsAfterFailures(t *testing.T) {
	// Given: a function that fails twice
	calls := 0
	fn := func() (int, error) {
		calls++
		if calls < 3 {
			return 0, stderrors.New("transient")
		}
		return 42, nil
	}

	// When: retrying with three retries
	got, err := RetryWithResult(context.Background(), fastRetry(3), fn)

	// Then: the third attempt's value is returned
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAndWrapsLastError(t *testing.T) {
	sentinel := stderrors.New("down")
	calls := 0

	err := Retry(context.Background(), fastRetry(2), func() error {
		calls++
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestRetry_ShouldRetryStopsEarly(t *testing.T) {
	cfg := fastRetry(5)
	cfg.ShouldRetry = IsRetryable
	calls := 0

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return ValidationError("bad model name", nil)
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastRetry(3), func() error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
