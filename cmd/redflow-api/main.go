package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/redflow/redflow/pkg/cmd"
	"github.com/redflow/redflow/pkg/log"
	"github.com/redflow/redflow/pkg/notify"
	"github.com/redflow/redflow/pkg/pipeline"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "redflow-api",
		Usage:                 "Serve the pipeline over HTTP",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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

			logger.InfoContext(ctx, "initializing redflow API")

			execs, err := cmd.NewExecutors(cmd.ClientConfigFromCommand(command), false)
			if err != nil {
				return err
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), "redflow-api", logger)
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

			api := NewAPI(logger, orchestrator)

			return api.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("api server exited", "error", err)
		os.Exit(1)
	}
}
