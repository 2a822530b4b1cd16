// Package queue consumes run requests from a redis list. Producers push
// JSON payloads; each one becomes a pipeline run.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/redflow/redflow/pkg/errs"
	"github.com/redflow/redflow/pkg/log"
	"github.com/redflow/redflow/pkg/runrequest"
	"github.com/redflow/redflow/pkg/triggers"
)

const (
	defaultQueue   = "redflow:runs"
	popTimeout     = 1 * time.Second
	errorBackoff   = 1 * time.Second
	connectTimeout = 5 * time.Second
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// Queue is the redis list run requests are pushed to.
	Queue string
}

// Trigger pops run requests off the list and feeds them into the engine.
// Invalid payloads and per-identity rejections are logged and dropped, never
// requeued.
type Trigger struct {
	cfg    Config
	client redis.UniversalClient
	runner triggers.Runner
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewTrigger(cfg Config) *Trigger {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}

	if cfg.Queue == "" {
		cfg.Queue = defaultQueue
	}

	return &Trigger{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		logger: log.WithModule("queue_trigger").With("queue", cfg.Queue),
	}
}

func (t *Trigger) Start(ctx context.Context, runner triggers.Runner) error {
	t.runner = runner

	t.client = redis.NewClient(&redis.Options{
		Addr:     t.cfg.Addr,
		Password: t.cfg.Password,
		DB:       t.cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := t.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	t.logger.InfoContext(ctx, "queue trigger started", "addr", t.cfg.Addr)

	t.wg.Add(1)

	go t.consume(ctx)

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopCh:
			t.logger.InfoContext(ctx, "queue consumer stopped")

			return
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "context cancelled, stopping queue consumer")

			return
		default:
			if err := t.processMessage(ctx); err != nil {
				t.logger.ErrorContext(ctx, "error processing message", "error", err)
				time.Sleep(errorBackoff)
			}
		}
	}
}

func (t *Trigger) processMessage(ctx context.Context) error {
	result, err := t.client.BLPop(ctx, popTimeout, t.cfg.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	payload := result[1]

	req, err := runrequest.Decode([]byte(payload))
	if err != nil {
		t.logger.WarnContext(ctx, "dropping invalid run request", "error", err)

		return nil
	}

	go t.dispatch(ctx, req)

	return nil
}

func (t *Trigger) dispatch(ctx context.Context, req *runrequest.RunRequest) {
	run := t.runner.Process
	if req.Preview {
		run = t.runner.Preview
	}

	result, err := run(ctx, req.Pipeline())
	if err != nil {
		if errs.IsKind(err, errs.KindAlreadyInProgress) {
			t.logger.WarnContext(ctx, "run rejected, identity already busy",
				"source_url", req.SourceURL, "identity", req.Identity)

			return
		}

		t.logger.ErrorContext(ctx, "queued run failed",
			"source_url", req.SourceURL, "error", err)

		return
	}

	t.logger.InfoContext(ctx, "queued run finished",
		"run_id", result.ID, "published_url", result.PublishedURL())
}

func (t *Trigger) Stop(ctx context.Context) error {
	close(t.stopCh)
	t.wg.Wait()

	if t.client != nil {
		if err := t.client.Close(); err != nil {
			t.logger.ErrorContext(ctx, "error closing redis client", "error", err)
		}
	}

	return nil
}
