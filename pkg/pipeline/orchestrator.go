// Package pipeline runs the five-stage reddit-to-video workflow: parse the
// source URL, fetch the post, generate the narration script, render the
// media and publish the result. The orchestrator owns the per-run audit
// trail and wraps every collaborator call in the resilience envelope
// (circuit breaker, retry, deadline; plus a poll loop for the media render).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/redflow/redflow/pkg/errs"
	"github.com/redflow/redflow/pkg/eventbus"
	"github.com/redflow/redflow/pkg/events"
	"github.com/redflow/redflow/pkg/log"
	"github.com/redflow/redflow/pkg/models"
	"github.com/redflow/redflow/pkg/notify"
	"github.com/redflow/redflow/pkg/otelhelper"
	"github.com/redflow/redflow/pkg/protocol"
	"github.com/redflow/redflow/pkg/resilience"
)

// Request describes one pipeline invocation.
type Request struct {
	// SourceURL is the raw source text to turn into a video. The injected
	// parser decides which forms are valid; unparseable input fails the
	// first step with an invalid_input error.
	SourceURL string `validate:"required"`
	// Annotation is optional requester commentary passed to the script
	// generator.
	Annotation string
	// Identity groups requests for the concurrency gate, typically the
	// requesting user. Defaults to the source URL.
	Identity string
}

func (r Request) identity() string {
	if r.Identity != "" {
		return r.Identity
	}

	return r.SourceURL
}

// Executors bundles the collaborator implementations injected into the
// orchestrator.
type Executors struct {
	Parser          protocol.SourceParser
	Fetcher         protocol.ContentFetcher
	ScriptGenerator protocol.ScriptGenerator
	MediaGenerator  protocol.MediaGenerator
	Publisher       protocol.Publisher
}

type Option func(*Orchestrator)

// WithNotifier routes progress messages to n instead of discarding them.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// WithEventBus publishes run and step lifecycle events on bus.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// Orchestrator drives pipeline runs. Safe for concurrent use; the circuit
// breakers and the concurrency gate are the only state shared between runs.
type Orchestrator struct {
	parser    protocol.SourceParser
	fetcher   protocol.ContentFetcher
	scripter  protocol.ScriptGenerator
	media     protocol.MediaGenerator
	publisher protocol.Publisher

	cfg      Config
	gate     *ConcurrencyGate
	breakers map[models.WorkflowStep]*resilience.CircuitBreaker
	notifier notify.Notifier
	bus      eventbus.EventBus
	tracer   trace.Tracer
	logger   *slog.Logger
	validate *validator.Validate

	runSeq atomic.Int64
}

func NewOrchestrator(executors Executors, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		parser:    executors.Parser,
		fetcher:   executors.Fetcher,
		scripter:  executors.ScriptGenerator,
		media:     executors.MediaGenerator,
		publisher: executors.Publisher,
		cfg:       cfg.withDefaults(),
		gate:      NewConcurrencyGate(),
		breakers:  make(map[models.WorkflowStep]*resilience.CircuitBreaker),
		notifier:  notify.Discard,
		tracer:    otel.Tracer("github.com/redflow/redflow/pkg/pipeline"),
		logger:    log.WithModule("pipeline"),
		validate:  validator.New(),
	}

	for _, step := range models.Steps() {
		o.breakers[step] = resilience.NewCircuitBreaker(string(step), o.cfg.Breaker)
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// BreakerSnapshots returns the current state of every step breaker, in
// pipeline order.
func (o *Orchestrator) BreakerSnapshots() []resilience.BreakerSnapshot {
	snapshots := make([]resilience.BreakerSnapshot, 0, len(models.Steps()))

	for _, step := range models.Steps() {
		snapshots = append(snapshots, o.breakers[step].Snapshot())
	}

	return snapshots
}

// ActiveRuns returns the identities with a run currently in flight.
func (o *Orchestrator) ActiveRuns() []string {
	return o.gate.Active()
}

// Process executes the full pipeline and returns the run result. On failure
// the partial result is returned together with the error.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*models.WorkflowResult, error) {
	return o.run(ctx, req, false)
}

// Preview executes the pipeline up to and including script generation,
// skipping media rendering and publishing.
func (o *Orchestrator) Preview(ctx context.Context, req Request) (*models.WorkflowResult, error) {
	return o.run(ctx, req, true)
}

func (o *Orchestrator) run(ctx context.Context, req Request, preview bool) (*models.WorkflowResult, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, "invalid run request", err)
	}

	identity := req.identity()

	if !o.gate.TryAcquire(identity) {
		return nil, errs.Newf(errs.KindAlreadyInProgress, "a run for %q is already in progress", identity).
			WithDetail("identity", identity)
	}
	defer o.gate.Release(identity)

	result := models.NewWorkflowResult(o.nextRunID())
	logger := o.logger.With("run_id", result.ID)

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "pipeline.run",
		attribute.String(otelhelper.RunIDKey, result.ID),
		attribute.String(otelhelper.SourceURLKey, req.SourceURL),
		attribute.String(otelhelper.IdentityKey, identity),
		attribute.Bool(otelhelper.PreviewKey, preview),
	)
	defer span.End()

	logger.InfoContext(ctx, "run started", "source_url", req.SourceURL, "preview", preview)
	o.publish(ctx, result.ID, events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, result.ID),
		SourceURL: req.SourceURL,
		Identity:  identity,
		Preview:   preview,
	})

	ref, err := runStep(ctx, o, result, models.StepParseSource,
		func(ctx context.Context) (models.SourceRef, error) {
			return resilient(ctx, o, models.StepParseSource, func(ctx context.Context) (models.SourceRef, error) {
				return o.parser.ParseSource(ctx, req.SourceURL)
			})
		},
		func(ref models.SourceRef) map[string]any {
			return map[string]any{"subreddit": ref.Subreddit, "post_id": ref.PostID}
		})
	if err != nil {
		return o.fail(ctx, span, result, models.StepParseSource, err)
	}

	result.Source = &ref

	post, err := runStep(ctx, o, result, models.StepFetchContent,
		func(ctx context.Context) (*models.Post, error) {
			post, err := resilient(ctx, o, models.StepFetchContent, func(ctx context.Context) (*models.Post, error) {
				return o.fetcher.FetchContent(ctx, ref)
			})
			if err != nil {
				return nil, err
			}

			if post.IsEmpty() {
				return nil, errs.Newf(errs.KindEmptyContent, "post %s has no usable content", post.ID).
					WithDetail("post_id", post.ID)
			}

			return post, nil
		},
		func(post *models.Post) map[string]any {
			return map[string]any{
				"title":    post.Title,
				"score":    post.Score,
				"comments": len(post.Comments),
			}
		})
	if err != nil {
		return o.fail(ctx, span, result, models.StepFetchContent, err)
	}

	result.Post = post

	script, err := runStep(ctx, o, result, models.StepGenerateScript,
		func(ctx context.Context) (*models.Script, error) {
			return resilient(ctx, o, models.StepGenerateScript, func(ctx context.Context) (*models.Script, error) {
				return o.scripter.GenerateScript(ctx, post, req.Annotation)
			})
		},
		func(script *models.Script) map[string]any {
			withinLimit := script.WithinWordLimit(o.cfg.MaxScriptWords, o.cfg.WordOverflow)
			if !withinLimit {
				logger.WarnContext(ctx, "script exceeds word budget",
					"word_count", script.WordCount(), "max_words", o.cfg.MaxScriptWords)
			}

			return map[string]any{
				"title":         script.Title,
				"word_count":    script.WordCount(),
				"word_limit_ok": withinLimit,
			}
		})
	if err != nil {
		return o.fail(ctx, span, result, models.StepGenerateScript, err)
	}

	result.Script = script

	if preview {
		return o.finish(ctx, result, logger, fmt.Sprintf("Preview ready: %q (%d words)", script.Title, script.WordCount()))
	}

	media, err := runStep(ctx, o, result, models.StepGenerateMedia,
		func(ctx context.Context) (*models.Media, error) {
			return o.renderMedia(ctx, result.ID, script, logger)
		},
		func(media *models.Media) map[string]any {
			return map[string]any{"job_id": media.JobID, "video_url": media.URL}
		})
	if err != nil {
		return o.fail(ctx, span, result, models.StepGenerateMedia, err)
	}

	result.Media = media

	publication, err := runStep(ctx, o, result, models.StepPublishArtifact,
		func(ctx context.Context) (*models.Publication, error) {
			return resilient(ctx, o, models.StepPublishArtifact, func(ctx context.Context) (*models.Publication, error) {
				return o.publisher.Publish(ctx, media, script, ref)
			})
		},
		func(pub *models.Publication) map[string]any {
			return map[string]any{"video_id": pub.VideoID, "url": pub.URL}
		})
	if err != nil {
		return o.fail(ctx, span, result, models.StepPublishArtifact, err)
	}

	result.Publication = publication

	return o.finish(ctx, result, logger, fmt.Sprintf("Video published: %s", publication.URL))
}

// renderMedia submits the render job and polls until it resolves. The
// submission and every status check go through the step's breaker and retry
// policy; the total wait is bounded by the poll ceiling rather than the
// per-attempt step deadline.
func (o *Orchestrator) renderMedia(ctx context.Context, runID string, script *models.Script, logger *slog.Logger) (*models.Media, error) {
	job, err := resilient(ctx, o, models.StepGenerateMedia, func(ctx context.Context) (models.MediaJob, error) {
		return o.media.GenerateMedia(ctx, script)
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "media render job submitted", "job_id", job.ID)
	o.notifier.Notify(ctx, runID, fmt.Sprintf("Media render job %s submitted", job.ID))

	pollCfg := o.cfg.Poll
	pollCfg.Logger = logger
	pollCfg.OnPending = func(elapsed time.Duration, raw string) {
		o.notifier.Notify(ctx, runID, fmt.Sprintf("Media render pending (%s, %s elapsed)",
			raw, elapsed.Round(time.Second)))
	}

	return resilience.Poll(ctx, pollCfg, func(ctx context.Context) (resilience.PollResult[*models.Media], error) {
		status, err := resilient(ctx, o, models.StepGenerateMedia, func(ctx context.Context) (protocol.MediaStatus, error) {
			return o.media.CheckMedia(ctx, job)
		})
		if err != nil {
			return resilience.PollResult[*models.Media]{}, err
		}

		switch status.State {
		case protocol.MediaCompleted:
			return resilience.PollResult[*models.Media]{State: resilience.PollCompleted, Payload: status.Media, Raw: status.Raw}, nil
		case protocol.MediaFailed:
			return resilience.PollResult[*models.Media]{State: resilience.PollFailed, Reason: status.Reason, Raw: status.Raw}, nil
		default:
			return resilience.PollResult[*models.Media]{State: resilience.PollPending, Raw: status.Raw}, nil
		}
	})
}

func (o *Orchestrator) finish(ctx context.Context, result *models.WorkflowResult, logger *slog.Logger, message string) (*models.WorkflowResult, error) {
	result.MarkCompleted()

	o.publish(ctx, result.ID, events.RunFinished{
		BaseEvent:    events.NewBaseEvent(events.RunFinishedEvent, result.ID),
		Status:       string(result.Status),
		PublishedURL: result.PublishedURL(),
		DurationMs:   result.Duration().Milliseconds(),
	})
	o.notifier.Notify(ctx, result.ID, message)

	logger.InfoContext(ctx, "run completed",
		"duration", result.Duration().Round(time.Millisecond).String(),
		"published_url", result.PublishedURL())

	return result, nil
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, result *models.WorkflowResult, step models.WorkflowStep, err error) (*models.WorkflowResult, error) {
	result.MarkFailed(err.Error())
	otelhelper.SetError(span, err, attribute.String(otelhelper.StepKey, string(step)))

	o.publish(ctx, result.ID, events.RunFailed{
		BaseEvent:  events.NewBaseEvent(events.RunFailedEvent, result.ID),
		Error:      err.Error(),
		FailedStep: string(step),
		DurationMs: result.Duration().Milliseconds(),
	})
	o.notifier.Notify(ctx, result.ID, fmt.Sprintf("Run failed at %s: %v", stepLabel(step), err))

	o.logger.ErrorContext(ctx, "run failed",
		"run_id", result.ID, "step", string(step),
		"kind", string(errs.KindOf(err)), "error", err)

	return result, err
}

func (o *Orchestrator) publish(ctx context.Context, key string, event eventbus.Event) {
	if o.bus == nil {
		return
	}

	if err := o.bus.Publish(ctx, key, event); err != nil {
		o.logger.Warn("failed to publish event",
			"event_type", string(event.GetType()), "error", err)
	}
}

func (o *Orchestrator) nextRunID() string {
	return fmt.Sprintf("run_%s_%04d", time.Now().UTC().Format("20060102_150405"), o.runSeq.Add(1))
}

// runStep owns the audit record and lifecycle events of one step. op carries
// its own resilience wrapping; runStep only records the outcome.
func runStep[T any](ctx context.Context, o *Orchestrator, result *models.WorkflowResult, step models.WorkflowStep, op func(context.Context) (T, error), output func(T) map[string]any) (T, error) {
	var zero T

	stepResult := result.BeginStep(step)

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "pipeline.step."+string(step),
		attribute.String(otelhelper.RunIDKey, result.ID),
		attribute.String(otelhelper.StepKey, string(step)),
		attribute.Int(otelhelper.StepIndexKey, models.StepIndex(step)),
	)
	defer span.End()

	o.notifier.Notify(ctx, result.ID, fmt.Sprintf("Step %d/%d: %s",
		models.StepIndex(step), len(models.Steps()), stepLabel(step)))
	o.publish(ctx, result.ID, events.StepStarted{
		BaseEvent: events.NewBaseEvent(events.StepStartedEvent, result.ID),
		Step:      string(step),
		Position:  models.StepIndex(step),
		Total:     len(models.Steps()),
	})

	value, err := op(ctx)
	if err != nil {
		stepResult.Fail(err.Error())
		otelhelper.SetError(span, err)

		o.publish(ctx, result.ID, events.StepFailed{
			BaseEvent:  events.NewBaseEvent(events.StepFailedEvent, result.ID),
			Step:       string(step),
			Error:      err.Error(),
			DurationMs: stepResult.CompletedAt.Sub(stepResult.StartedAt).Milliseconds(),
		})

		return zero, err
	}

	var out map[string]any
	if output != nil {
		out = output(value)
	}

	stepResult.Complete(out)

	o.publish(ctx, result.ID, events.StepCompleted{
		BaseEvent:  events.NewBaseEvent(events.StepCompletedEvent, result.ID),
		Step:       string(step),
		Output:     out,
		DurationMs: stepResult.CompletedAt.Sub(stepResult.StartedAt).Milliseconds(),
	})

	return value, nil
}

// resilient applies the step's resilience envelope to one collaborator call:
// the circuit breaker admits or rejects each attempt, the deadline bounds it
// and the retry policy drives further attempts. Breaker rejections never
// count as collaborator failures and are not retried.
func resilient[T any](ctx context.Context, o *Orchestrator, step models.WorkflowStep, op func(context.Context) (T, error)) (T, error) {
	breaker := o.breakers[step]
	deadline := o.cfg.stepTimeout(step)

	policy := o.cfg.Retry
	userOnRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		o.logger.Warn("step attempt failed, retrying",
			"step", string(step), "attempt", attempt,
			"delay", delay.String(), "error", err)

		if userOnRetry != nil {
			userOnRetry(attempt, delay, err)
		}
	}

	return resilience.Retry(ctx, policy, func(ctx context.Context) (T, error) {
		var zero T

		if err := breaker.Allow(); err != nil {
			return zero, err
		}

		value, err := resilience.WithTimeout(ctx, deadline, op)
		if err != nil {
			breaker.RecordFailure()

			return zero, err
		}

		breaker.RecordSuccess()

		return value, nil
	})
}

func stepLabel(step models.WorkflowStep) string {
	switch step {
	case models.StepParseSource:
		return "Parsing source URL"
	case models.StepFetchContent:
		return "Fetching post content"
	case models.StepGenerateScript:
		return "Generating script"
	case models.StepGenerateMedia:
		return "Rendering media"
	case models.StepPublishArtifact:
		return "Publishing video"
	}

	return string(step)
}
