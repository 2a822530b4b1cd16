package pipeline

import (
	"time"

	"github.com/redflow/redflow/pkg/models"
	"github.com/redflow/redflow/pkg/resilience"
)

const (
	defaultStepTimeout    = 2 * time.Minute
	defaultPublishTimeout = 10 * time.Minute
	defaultWordOverflow   = 0.20
)

// Config tunes the resilience envelope the orchestrator applies around every
// step. The zero value gives workable defaults for all fields.
type Config struct {
	// StepTimeouts overrides the deadline for individual steps. Steps without
	// an entry use DefaultStepTimeout. The media render wait is bounded by
	// Poll.Ceiling instead, this deadline only covers the job submission.
	StepTimeouts map[models.WorkflowStep]time.Duration
	// DefaultStepTimeout is the per-attempt deadline for steps without an
	// override.
	DefaultStepTimeout time.Duration
	// Retry is applied to every collaborator call. The predicate defaults to
	// transient-only; OnRetry is owned by the orchestrator.
	Retry resilience.RetryPolicy
	// Breaker configures the per-step circuit breakers.
	Breaker resilience.BreakerConfig
	// Poll configures the media render wait loop.
	Poll resilience.PollConfig
	// MaxScriptWords is the soft word budget for generated scripts. Zero
	// disables the check. Scripts over budget plus WordOverflow are logged,
	// never rejected.
	MaxScriptWords int
	// WordOverflow is the tolerated fraction above MaxScriptWords.
	WordOverflow float64
}

func (c Config) withDefaults() Config {
	if c.DefaultStepTimeout <= 0 {
		c.DefaultStepTimeout = defaultStepTimeout
	}

	if c.StepTimeouts == nil {
		c.StepTimeouts = map[models.WorkflowStep]time.Duration{
			models.StepPublishArtifact: defaultPublishTimeout,
		}
	}

	if c.WordOverflow <= 0 {
		c.WordOverflow = defaultWordOverflow
	}

	return c
}

func (c Config) stepTimeout(step models.WorkflowStep) time.Duration {
	if d, ok := c.StepTimeouts[step]; ok {
		return d
	}

	return c.DefaultStepTimeout
}
