// Package main provides the redflow trigger daemon, hosting the queue and
// schedule run sources.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/redflow/redflow/pkg/cmd"
	"github.com/redflow/redflow/pkg/log"
	"github.com/redflow/redflow/pkg/notify"
	"github.com/redflow/redflow/pkg/pipeline"
	"github.com/redflow/redflow/pkg/triggers"
	"github.com/redflow/redflow/pkg/triggers/queue"
	"github.com/redflow/redflow/pkg/triggers/schedule"
)

func main() {
	logger := log.WithModule("trigger")

	command := &cli.Command{
		Name:                  "redflow-trigger",
		Usage:                 "Consume run requests from redis and cron schedules",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address the run queue lives on",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				Sources: cli.EnvVars("REDIS_DB"),
			},
			&cli.StringFlag{
				Name:    "queue",
				Usage:   "Redis list run requests are pushed to",
				Value:   "redflow:runs",
				Sources: cli.EnvVars("RUN_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "schedules-file",
				Usage:   "JSON file with cron schedule entries",
				Sources: cli.EnvVars("SCHEDULES_FILE"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		}, cmd.ClientFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			return run(ctx, command)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("trigger daemon exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("trigger")

	execs, err := cmd.NewExecutors(cmd.ClientConfigFromCommand(command), false)
	if err != nil {
		return err
	}

	eventBus := cmd.NewEventBus(command.String("event-bus"), "redflow-trigger", logger)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close event bus", "error", err)
		}
	}()

	orchestrator := pipeline.NewOrchestrator(execs,
		pipeline.Config{MaxScriptWords: command.Int("max-script-words")},
		pipeline.WithEventBus(eventBus),
		pipeline.WithNotifier(notify.Multi(
			notify.NewLogNotifier(logger),
			notify.NewEventBusNotifier(eventBus, logger),
		)),
	)

	active, err := buildTriggers(command)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, trigger := range active {
		if err := trigger.Start(ctx, orchestrator); err != nil {
			return err
		}
	}

	logger.InfoContext(ctx, "trigger daemon started", "triggers", len(active))

	<-ctx.Done()

	logger.Info("shutting down")

	shutdownCtx := context.Background()
	for _, trigger := range active {
		if err := trigger.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop trigger", "error", err)
		}
	}

	return nil
}

func buildTriggers(command *cli.Command) ([]triggers.Trigger, error) {
	active := []triggers.Trigger{
		queue.NewTrigger(queue.Config{
			Addr:     command.String("redis-addr"),
			Password: command.String("redis-password"),
			DB:       command.Int("redis-db"),
			Queue:    command.String("queue"),
		}),
	}

	schedulesFile := command.String("schedules-file")
	if schedulesFile == "" {
		return active, nil
	}

	raw, err := os.ReadFile(schedulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedules file: %w", err)
	}

	var entries []schedule.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse schedules file: %w", err)
	}

	scheduleTrigger, err := schedule.NewTrigger(entries)
	if err != nil {
		return nil, err
	}

	return append(active, scheduleTrigger), nil
}
