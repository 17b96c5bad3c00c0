// Package main provides the composer command line: offline validation and
// conversion of entity and graph files, plus runs and checkpoints against the
// execution API.
package main

import (
	"context"
	"os"

	"github.com/dukex/composer/pkg/cmd"
	"github.com/dukex/composer/pkg/log"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:                      "composer",
		Usage:                     "Compose, validate and run entities",
		EnableShellCompletion:     true,
		DisableSliceFlagSeparator: true,
		Flags:                     cmd.ClientFlags(),
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup("composer", command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			NewValidateCommand(),
			NewConvertCommand(),
			NewExplodeCommand(),
			NewRunCommand(),
			NewTraceCommand(),
			{
				Name:  "runs",
				Usage: "Inspect execution runs",
				Commands: []*cli.Command{
					NewRunsListCommand(),
				},
			},
			{
				Name:    "checkpoints",
				Aliases: []string{"cp"},
				Usage:   "List and answer human-in-the-loop checkpoints",
				Commands: []*cli.Command{
					NewCheckpointsListCommand(),
					NewCheckpointsRespondCommand(),
				},
			},
		},
	}
}

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.WithModule("composer").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
