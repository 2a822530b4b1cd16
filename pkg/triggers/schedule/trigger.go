// Package schedule starts recurring pipeline runs from cron entries,
// typically used for periodic digest posting from a fixed set of sources.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/redflow/redflow/pkg/errs"
	"github.com/redflow/redflow/pkg/log"
	"github.com/redflow/redflow/pkg/pipeline"
	"github.com/redflow/redflow/pkg/triggers"
)

// Entry pairs a cron expression with the run it starts. SourceURL may be
// any form the source parser accepts.
type Entry struct {
	Cron       string `json:"cron"       validate:"required"`
	SourceURL  string `json:"source_url" validate:"required"`
	Annotation string `json:"annotation,omitempty"`
	Identity   string `json:"identity,omitempty"`
	Preview    bool   `json:"preview,omitempty"`
}

// Trigger runs the configured entries on their cron schedules.
type Trigger struct {
	entries []Entry
	cron    *cron.Cron
	runner  triggers.Runner
	logger  *slog.Logger
}

func NewTrigger(entries []Entry) (*Trigger, error) {
	if len(entries) == 0 {
		return nil, errs.New(errs.KindInvalidInput, "schedule trigger needs at least one entry")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	for i, entry := range entries {
		if err := validate.Struct(entry); err != nil {
			return nil, errs.Wrap(errs.KindInvalidInput, fmt.Sprintf("schedule entry %d is invalid", i), err)
		}

		if _, err := cron.ParseStandard(entry.Cron); err != nil {
			return nil, errs.Wrap(errs.KindInvalidInput,
				fmt.Sprintf("schedule entry %d has an invalid cron expression", i), err)
		}
	}

	return &Trigger{
		entries: entries,
		logger:  log.WithModule("schedule_trigger"),
	}, nil
}

func (t *Trigger) Start(ctx context.Context, runner triggers.Runner) error {
	t.runner = runner
	t.cron = cron.New()

	for _, entry := range t.entries {
		if _, err := t.cron.AddFunc(entry.Cron, t.jobFor(ctx, entry)); err != nil {
			return fmt.Errorf("failed to register cron job %q: %w", entry.Cron, err)
		}

		t.logger.InfoContext(ctx, "schedule registered",
			"cron", entry.Cron, "source_url", entry.SourceURL)
	}

	t.cron.Start()

	return nil
}

func (t *Trigger) jobFor(ctx context.Context, entry Entry) func() {
	return func() {
		req := pipeline.Request{
			SourceURL:  entry.SourceURL,
			Annotation: entry.Annotation,
			Identity:   entry.Identity,
		}

		run := t.runner.Process
		if entry.Preview {
			run = t.runner.Preview
		}

		result, err := run(ctx, req)
		if err != nil {
			if errs.IsKind(err, errs.KindAlreadyInProgress) {
				t.logger.WarnContext(ctx, "scheduled run skipped, identity already busy",
					"source_url", entry.SourceURL)

				return
			}

			t.logger.ErrorContext(ctx, "scheduled run failed",
				"source_url", entry.SourceURL, "error", err)

			return
		}

		t.logger.InfoContext(ctx, "scheduled run finished",
			"run_id", result.ID, "published_url", result.PublishedURL())
	}
}

func (t *Trigger) Stop(ctx context.Context) error {
	if t.cron != nil {
		stopCtx := t.cron.Stop()

		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}

	return nil
}
