// Package triggers defines the contract between run sources (queue,
// schedule) and the pipeline engine.
package triggers

import (
	"context"

	"github.com/redflow/redflow/pkg/models"
	"github.com/redflow/redflow/pkg/pipeline"
)

// Runner is the engine surface triggers dispatch runs into.
type Runner interface {
	Process(ctx context.Context, req pipeline.Request) (*models.WorkflowResult, error)
	Preview(ctx context.Context, req pipeline.Request) (*models.WorkflowResult, error)
}

// Trigger is a run source with a lifecycle.
type Trigger interface {
	Start(ctx context.Context, runner Runner) error
	Stop(ctx context.Context) error
}
