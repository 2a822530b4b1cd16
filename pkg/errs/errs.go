// Package errs defines the error taxonomy shared by the pipeline engine and
// the collaborator clients. Every failure crossing a package boundary carries
// a Kind so the resilience layer can decide whether to retry, trip a breaker
// or fail the run outright.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"       // unparseable or rejected input, never retried
	KindNotFound          Kind = "not_found"           // the referenced resource does not exist
	KindEmptyContent      Kind = "empty_content"       // nothing usable to process, fatal
	KindTransient         Kind = "transient"           // network blips, 5xx, 429 - retryable
	KindGenerationFailure Kind = "generation_failure"  // the remote job itself reported failure
	KindTimeout           Kind = "timeout"             // deadline elapsed waiting for the operation
	KindCircuitOpen       Kind = "circuit_open"        // short-circuited by an open breaker
	KindAlreadyInProgress Kind = "already_in_progress" // a run for this identity is active
	KindUnexpected        Kind = "unexpected"          // catch-all, always terminal
)

// Error is the concrete error type used across redflow. Details holds
// step-specific context for logs and problem responses; it must never
// contain secrets.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a context value and returns the same error for
// chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}

	e.Details[key] = value

	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from any error in the chain. Errors without a
// Kind are classified as unexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnexpected
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the error is transient. This is the default
// predicate used by retry policies; policies may widen it (for example to
// include timeouts) but never to non-transient business failures.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
