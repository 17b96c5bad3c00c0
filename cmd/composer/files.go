package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/composer/pkg/convert"
	"github.com/dukex/composer/pkg/entity"
	"github.com/dukex/composer/pkg/schema"
	cli "github.com/urfave/cli/v3"
)

var (
	ErrFileRequired = errors.New("a file argument is required")
	ErrInvalidFile  = errors.New("file is not valid")
)

func fileArg(command *cli.Command) (string, error) {
	path := command.Args().First()
	if path == "" {
		return "", ErrFileRequired
	}

	return path, nil
}

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate an entity or graph file (JSON or YAML, - for stdin)",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "graph",
				Usage: "Treat the file as a plan graph instead of an entity",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			path, err := fileArg(command)
			if err != nil {
				return err
			}

			raw, err := schema.ReadFile(path)
			if err != nil {
				return err
			}

			out := command.Root().Writer

			if command.Bool("graph") {
				return validateGraph(out, raw)
			}

			return validateEntity(out, raw)
		},
	}
}

func validateEntity(out io.Writer, raw []byte) error {
	e, err := schema.DecodeEntity(raw)
	if err != nil {
		return reportSchema(out, err)
	}

	errs := entity.Validate(e)
	if len(errs) == 0 {
		fmt.Fprintf(out, "%s %q is valid\n", e.Type, e.Name)

		return nil
	}

	for _, fe := range errs {
		fmt.Fprintf(out, "  - %s [%s]: %s\n", fe.Field, fe.Code, fe.Message)
	}

	return fmt.Errorf("%w: %d field errors", ErrInvalidFile, len(errs))
}

func validateGraph(out io.Writer, raw []byte) error {
	g, err := schema.DecodeGraph(raw)
	if err != nil {
		return reportSchema(out, err)
	}

	shape := convert.Classify(*g)

	_, err = convert.ToPlan(*g, convert.Options{})

	var conversionErrs convert.ConversionErrors
	if errors.As(err, &conversionErrs) {
		fmt.Fprintf(out, "graph shape: %s\n", shape)

		for _, ce := range conversionErrs {
			fmt.Fprintf(out, "  - [%s] %s\n", ce.Code, ce.Error())
		}

		return fmt.Errorf("%w: %d conversion errors", ErrInvalidFile, len(conversionErrs))
	}

	if err != nil {
		return err
	}

	fmt.Fprintf(out, "graph shape: %s, %d nodes, %d edges\n", shape, len(g.Nodes), len(g.Edges))

	return nil
}

func reportSchema(out io.Writer, err error) error {
	var invalid *schema.ValidationError
	if !errors.As(err, &invalid) {
		return err
	}

	for _, issue := range invalid.Issues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}

	return fmt.Errorf("%w: %d schema issues", ErrInvalidFile, len(invalid.Issues))
}

func NewConvertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert a plan graph into steps and hierarchy",
		ArgsUsage: "<graph-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "entity-id",
				Usage: "Entity the graph belongs to; references to it are rejected",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the plan to this file (.yaml for YAML) instead of stdout",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			path, err := fileArg(command)
			if err != nil {
				return err
			}

			raw, err := schema.ReadFile(path)
			if err != nil {
				return err
			}

			g, err := schema.DecodeGraph(raw)
			if err != nil {
				return reportSchema(command.Root().Writer, err)
			}

			plan, err := convert.ToPlan(*g, convert.Options{EntityID: command.String("entity-id")})
			if err != nil {
				return fmt.Errorf("failed to convert graph: %w", err)
			}

			return write(command, plan)
		},
	}
}

func NewExplodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "explode",
		Usage:     "Draw the plan of an entity file as a graph",
		ArgsUsage: "<entity-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the graph to this file (.yaml for YAML) instead of stdout",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			path, err := fileArg(command)
			if err != nil {
				return err
			}

			raw, err := schema.ReadFile(path)
			if err != nil {
				return err
			}

			e, err := schema.DecodeEntity(raw)
			if err != nil {
				return reportSchema(command.Root().Writer, err)
			}

			g, err := convert.ToGraph(e, convert.GraphOptions{})
			if err != nil {
				return fmt.Errorf("failed to draw plan: %w", err)
			}

			return write(command, g)
		},
	}
}

// write encodes v to --output, or as JSON to the command's writer.
func write(command *cli.Command, v any) error {
	target := command.String("output")

	data, err := schema.Encode(target, v)
	if err != nil {
		return err
	}

	if target == "" || target == "-" {
		_, err = fmt.Fprintln(command.Root().Writer, string(data))

		return err
	}

	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}

	return nil
}
