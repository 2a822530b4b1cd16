// Package resilience provides the wrappers the pipeline applies around every
// collaborator call: bounded retry with exponential backoff, a per-collaborator
// circuit breaker, a deadline guard and a long-poll loop for asynchronous
// remote jobs. All wrappers are plain values safe to share across runs except
// the CircuitBreaker, which deliberately carries cross-run state.
package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redflow/redflow/pkg/errs"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 60 * time.Second
	defaultMultiplier  = 2.0
)

// RetryPolicy configures bounded retry with exponential backoff. The zero
// value is usable; unset fields fall back to the defaults above. Policies
// hold no mutable state and may be shared freely.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls including the first one.
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// Multiplier grows the delay between consecutive attempts. Must be >1
	// to actually back off.
	Multiplier float64
	// Retryable selects which errors are worth another attempt. Defaults to
	// errs.IsRetryable (transient errors only).
	Retryable func(error) bool
	// OnRetry is called after a failed attempt, before the backoff sleep.
	// attempt is 1-based.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}

	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}

	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}

	if p.Multiplier <= 1 {
		p.Multiplier = defaultMultiplier
	}

	if p.Retryable == nil {
		p.Retryable = errs.IsRetryable
	}

	return p
}

// Delay returns the backoff to sleep after the given failed attempt
// (1-based): min(base * multiplier^(attempt-1), max). Pure function of the
// policy, exposed so callers can reason about schedules.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.withDefaults()

	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// ExhaustedError tags the last error after all attempts were spent. Unwrap
// preserves the underlying error so kind classification still works.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry attempts exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Retry runs op under the policy. Non-retryable errors propagate on first
// occurrence; exhausting all attempts returns the last error wrapped in
// *ExhaustedError. Context cancellation interrupts the backoff sleep.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var zero T

	p := policy.withDefaults()

	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}

		lastErr = err

		if !p.Retryable(err) {
			return zero, err
		}

		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Delay(attempt)

		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()

			return zero, fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
	}

	return zero, &ExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}
