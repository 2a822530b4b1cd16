package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/redflow/redflow/pkg/errs"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

const (
	defaultFailureThreshold = 5
	defaultOpenDuration     = 60 * time.Second
)

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit.
	FailureThreshold int
	// OpenDuration is how long the circuit stays open before admitting a
	// probe.
	OpenDuration time.Duration
}

// CircuitBreaker tracks consecutive failures of one collaborator and
// short-circuits calls while it is persistently failing. It is the only
// cross-run shared mutable state in the engine; every method is safe for
// concurrent use.
//
// While half-open exactly one probe call is admitted; concurrent callers
// fail fast instead of piling onto the probe.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probing     bool
}

// BreakerSnapshot is a point-in-time view of a breaker, used by the
// observability surface.
type BreakerSnapshot struct {
	Name                string       `json:"name"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastFailureAt       *time.Time   `json:"last_failure_at,omitempty"`
}

func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}

	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = defaultOpenDuration
	}

	return &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		state: BreakerClosed,
	}
}

func (b *CircuitBreaker) Name() string {
	return b.name
}

// Allow reports whether a call may proceed. Returns a circuit_open error
// when the breaker rejects the call. An open breaker whose cooldown has
// elapsed transitions to half-open and admits exactly one probe.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if time.Since(b.lastFailure) < b.cfg.OpenDuration {
			return b.openError()
		}

		b.state = BreakerHalfOpen
		b.probing = true

		return nil
	case BreakerHalfOpen:
		if b.probing {
			return b.openError()
		}

		b.probing = true

		return nil
	}

	return nil
}

// RecordSuccess resets the failure count; a successful half-open probe
// closes the circuit.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	b.state = BreakerClosed
}

// RecordFailure counts a failure of a call that actually reached the
// collaborator. A failed half-open probe reopens the circuit and restarts
// the cooldown.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.probing = false
	case BreakerClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.state = BreakerOpen
		}
	case BreakerOpen:
	}
}

// Execute runs op through the breaker. A circuit_open rejection never
// reaches op and is not counted as a collaborator failure.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}

	if err := op(ctx); err != nil {
		b.RecordFailure()

		return err
	}

	b.RecordSuccess()

	return nil
}

// State returns the current state, surfacing the half-open transition once
// the cooldown has elapsed even if no probe has been admitted yet.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.lastFailure) >= b.cfg.OpenDuration {
		return BreakerHalfOpen
	}

	return b.state
}

func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	state := b.State()

	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := BreakerSnapshot{
		Name:                b.name,
		State:               state,
		ConsecutiveFailures: b.failures,
	}

	if !b.lastFailure.IsZero() {
		lastFailure := b.lastFailure
		snapshot.LastFailureAt = &lastFailure
	}

	return snapshot
}

func (b *CircuitBreaker) openError() error {
	return errs.Newf(errs.KindCircuitOpen, "circuit %q is open", b.name).
		WithDetail("circuit", b.name).
		WithDetail("state", string(b.state))
}
