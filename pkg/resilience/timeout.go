package resilience

import (
	"context"
	"time"

	"github.com/redflow/redflow/pkg/errs"
)

// WithTimeout runs op with a deadline. The operation receives a context that
// is cancelled when the deadline elapses; cancellation is best-effort. An
// operation that ignores its context keeps running in the background, but
// its result is discarded and the caller gets a timeout error carrying the
// elapsed time.
func WithTimeout[T any](ctx context.Context, deadline time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if deadline <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}

	done := make(chan outcome, 1)
	started := time.Now()

	go func() {
		value, err := op(opCtx)
		done <- outcome{value: value, err: err}
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return zero, errs.Wrap(errs.KindTimeout, "operation cancelled", ctx.Err()).
			WithDetail("elapsed", time.Since(started).Round(time.Millisecond).String())
	case <-timer.C:
		return zero, errs.Newf(errs.KindTimeout, "operation timed out after %s",
			time.Since(started).Round(time.Millisecond)).
			WithDetail("deadline", deadline.String())
	}
}
