// Package main provides the redflow CLI: run the pipeline for a single
// reddit post, or preview the generated script without rendering.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/redflow/redflow/pkg/cmd"
	"github.com/redflow/redflow/pkg/log"
	"github.com/redflow/redflow/pkg/models"
	"github.com/redflow/redflow/pkg/notify"
	"github.com/redflow/redflow/pkg/pipeline"
)

func main() {
	command := &cli.Command{
		Name:                  "redflow",
		Usage:                 "Turn a reddit post into a published short-form video",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		}, cmd.ClientFlags()...),
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Execute the full pipeline and publish the video",
				ArgsUsage: "<reddit post URL>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "annotation",
						Usage: "Optional commentary worked into the script",
					},
					&cli.StringFlag{
						Name:  "identity",
						Usage: "Concurrency identity, defaults to the source URL",
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return execute(ctx, command, false)
				},
			},
			{
				Name:      "preview",
				Usage:     "Generate and print the script without rendering or publishing",
				ArgsUsage: "<reddit post URL>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "annotation",
						Usage: "Optional commentary worked into the script",
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return execute(ctx, command, true)
				},
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, command *cli.Command, preview bool) error {
	log.Setup(command.String("log-level"))

	sourceURL := command.Args().First()
	if sourceURL == "" {
		return errors.New("a reddit post URL is required")
	}

	execs, err := cmd.NewExecutors(cmd.ClientConfigFromCommand(command), preview)
	if err != nil {
		return err
	}

	cfg := pipeline.Config{MaxScriptWords: command.Int("max-script-words")}

	orchestrator := pipeline.NewOrchestrator(execs, cfg,
		pipeline.WithNotifier(notify.NewLogNotifier(log.WithModule("cli"))))

	req := pipeline.Request{
		SourceURL:  sourceURL,
		Annotation: command.String("annotation"),
		Identity:   command.String("identity"),
	}

	run := orchestrator.Process
	if preview {
		run = orchestrator.Preview
	}

	result, err := run(ctx, req)
	if result != nil {
		printResult(result)
	}

	return err
}

func printResult(result *models.WorkflowResult) {
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to render result:", err)

		return
	}

	fmt.Println(string(encoded))
}
