package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redflow/redflow/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	value, err := Retry(context.Background(), fastPolicy(5), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errs.New(errs.KindTransient, "temporary outage")
		}

		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(4), func(context.Context) (int, error) {
		calls++

		return 0, errs.New(errs.KindTransient, "still down")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	// The underlying kind survives the exhaustion wrapper.
	assert.Equal(t, errs.KindTransient, errs.KindOf(err))
}

func TestRetryDoesNotRetryFatalErrors(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++

		return 0, errs.New(errs.KindInvalidInput, "malformed url")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))
}

func TestRetryBackoffMonotonicAndCapped(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2,
	}

	previous := time.Duration(0)
	for attempt := 1; attempt <= 9; attempt++ {
		delay := policy.Delay(attempt)

		assert.GreaterOrEqual(t, delay, previous, "attempt %d", attempt)
		assert.LessOrEqual(t, delay, policy.MaxDelay, "attempt %d", attempt)

		previous = delay
	}

	assert.Equal(t, 100*time.Millisecond, policy.Delay(1))
	assert.Equal(t, 200*time.Millisecond, policy.Delay(2))
	assert.Equal(t, 400*time.Millisecond, policy.Delay(3))
	assert.Equal(t, time.Second, policy.Delay(9))
}

func TestRetryOnRetryHook(t *testing.T) {
	var attempts []int

	policy := fastPolicy(3)
	policy.OnRetry = func(attempt int, _ time.Duration, err error) {
		attempts = append(attempts, attempt)
		assert.Error(t, err)
	}

	_, err := Retry(context.Background(), policy, func(context.Context) (int, error) {
		return 0, errs.New(errs.KindTransient, "nope")
	})

	require.Error(t, err)
	// Hook fires between attempts, not after the last one.
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Hour,
		MaxDelay:    time.Hour,
		Multiplier:  2,
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Retry(ctx, policy, func(context.Context) (int, error) {
		return 0, errs.New(errs.KindTransient, "down")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryCustomPredicate(t *testing.T) {
	sentinel := errors.New("plain failure")

	policy := fastPolicy(3)
	policy.Retryable = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	_, err := Retry(context.Background(), policy, func(context.Context) (int, error) {
		calls++

		return 0, sentinel
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}
