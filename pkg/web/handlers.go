// Package web provides the HTTP surface of the pipeline: starting runs and
// previews, and inspecting the circuit breakers.
package web

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/redflow/redflow/pkg/log"
	"github.com/redflow/redflow/pkg/models"
	"github.com/redflow/redflow/pkg/pipeline"
	"github.com/redflow/redflow/pkg/resilience"
	"github.com/redflow/redflow/pkg/runrequest"
)

// Runner is the engine surface the handlers drive.
type Runner interface {
	Process(ctx context.Context, req pipeline.Request) (*models.WorkflowResult, error)
	Preview(ctx context.Context, req pipeline.Request) (*models.WorkflowResult, error)
	BreakerSnapshots() []resilience.BreakerSnapshot
	ActiveRuns() []string
}

type APIHandlers struct {
	runner Runner
}

func NewAPIHandlers(runner Runner) *APIHandlers {
	return &APIHandlers{runner: runner}
}

// RegisterRoutes mounts all pipeline endpoints on the app.
func RegisterRoutes(app *fiber.App, handlers *APIHandlers) {
	runs := app.Group("/runs")
	runs.Post("/", handlers.CreateRun)
	runs.Post("/preview", handlers.PreviewRun)

	app.Get("/circuits", handlers.GetCircuits)
	app.Get("/healthz", handlers.HealthCheck)
}

// CreateRun executes the full pipeline synchronously and returns the run
// result. Failures map onto problem responses by error kind.
func (h *APIHandlers) CreateRun(c fiber.Ctx) error {
	return h.execute(c, false)
}

// PreviewRun executes the pipeline up to script generation.
func (h *APIHandlers) PreviewRun(c fiber.Ctx) error {
	return h.execute(c, true)
}

func (h *APIHandlers) execute(c fiber.Ctx, preview bool) error {
	req, err := runrequest.Decode(c.Body())
	if err != nil {
		return problemFor(c, err)
	}

	run := h.runner.Process
	if preview || req.Preview {
		run = h.runner.Preview
	}

	result, err := run(c.Context(), req.Pipeline())
	if err != nil {
		log.WithModule("web").ErrorContext(c.Context(), "run request failed",
			"source_url", req.SourceURL, "error", err)

		return problemFor(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// GetCircuits reports the state of every step circuit breaker.
func (h *APIHandlers) GetCircuits(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"circuits": h.runner.BreakerSnapshots(),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "ok",
		"active_runs": len(h.runner.ActiveRuns()),
	})
}
