package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redflow/redflow/pkg/errs"
)

// PollState is the tri-state outcome of one status check.
type PollState string

const (
	PollPending   PollState = "pending"
	PollCompleted PollState = "completed"
	PollFailed    PollState = "failed"
)

// PollResult carries the outcome of one status check. Raw is the
// collaborator's own status string, passed verbatim to the progress
// callback.
type PollResult[T any] struct {
	State   PollState
	Payload T
	Reason  string
	Raw     string
}

const (
	defaultPollInitialInterval = 10 * time.Second
	defaultPollMaxInterval     = 60 * time.Second
	defaultPollBackoffFactor   = 1.5
	defaultPollCeiling         = 30 * time.Minute
)

// PollConfig configures the long-poll loop for an asynchronous remote job.
type PollConfig struct {
	// InitialInterval is the wait before the second check; the first check
	// runs immediately.
	InitialInterval time.Duration
	// MaxInterval caps the backoff growth between checks.
	MaxInterval time.Duration
	// BackoffFactor multiplies the interval after every pending result.
	BackoffFactor float64
	// Ceiling bounds the total wait; exceeding it fails with a timeout
	// error carrying the elapsed time.
	Ceiling time.Duration
	// OnPending is invoked after every pending observation with the elapsed
	// time and the raw status string. Panics are logged and ignored; the
	// loop never aborts because of the callback.
	OnPending func(elapsed time.Duration, raw string)
	Logger    *slog.Logger
}

func (c PollConfig) withDefaults() PollConfig {
	if c.InitialInterval <= 0 {
		c.InitialInterval = defaultPollInitialInterval
	}

	if c.MaxInterval <= 0 {
		c.MaxInterval = defaultPollMaxInterval
	}

	if c.BackoffFactor <= 1 {
		c.BackoffFactor = defaultPollBackoffFactor
	}

	if c.Ceiling <= 0 {
		c.Ceiling = defaultPollCeiling
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return c
}

// Poll repeatedly invokes check until the job resolves. The backoff is
// asymmetric: intervals grow only on pending results. Completed and failed
// are terminal immediately; a reported failure is the job's own verdict and
// is never retried here. A transport error from check propagates as-is so
// the caller's retry policy can classify it.
func Poll[T any](ctx context.Context, cfg PollConfig, check func(context.Context) (PollResult[T], error)) (T, error) {
	var zero T

	c := cfg.withDefaults()
	started := time.Now()
	interval := c.InitialInterval

	for {
		result, err := check(ctx)
		if err != nil {
			return zero, err
		}

		switch result.State {
		case PollCompleted:
			return result.Payload, nil
		case PollFailed:
			return zero, errs.Newf(errs.KindGenerationFailure, "remote job failed: %s", result.Reason).
				WithDetail("status", result.Raw)
		case PollPending:
		default:
			return zero, errs.Newf(errs.KindUnexpected, "unknown poll state %q", result.State)
		}

		elapsed := time.Since(started)
		notifyPending(c, elapsed, result.Raw)

		if elapsed >= c.Ceiling {
			return zero, errs.Newf(errs.KindTimeout, "job still pending after %s",
				elapsed.Round(time.Second)).
				WithDetail("ceiling", c.Ceiling.String())
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()

			return zero, fmt.Errorf("poll cancelled after %s: %w", time.Since(started).Round(time.Millisecond), ctx.Err())
		}

		next := time.Duration(float64(interval) * c.BackoffFactor)
		if next > c.MaxInterval {
			next = c.MaxInterval
		}

		interval = next
	}
}

func notifyPending(c PollConfig, elapsed time.Duration, raw string) {
	if c.OnPending == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.Logger.Warn("poll progress callback panicked", "panic", r)
		}
	}()

	c.OnPending(elapsed, raw)
}
