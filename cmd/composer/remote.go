package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dukex/composer/pkg/cmd"
	"github.com/dukex/composer/pkg/events"
	"github.com/dukex/composer/pkg/log"
	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/services"
	"github.com/dukex/composer/pkg/template"
	"github.com/dukex/composer/pkg/trace"
	cli "github.com/urfave/cli/v3"
)

var (
	ErrEntityIDRequired     = errors.New("an entity id is required")
	ErrRunIDRequired        = errors.New("a run id is required")
	ErrCheckpointIDRequired = errors.New("a checkpoint id is required")
	ErrDecisionRequired     = errors.New("exactly one of --approve or --reject is required")
	ErrNodeNotFound         = errors.New("run is not part of the trace")
)

// withAPI connects to the execution API for the duration of fn.
func withAPI(ctx context.Context, command *cli.Command, fn func(services.API) error) error {
	logger := log.WithModule("composer")

	api, shutdown, err := cmd.NewClient(ctx, logger, cmd.ClientConfigFrom(command, "composer"))
	if err != nil {
		return err
	}

	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
		}
	}()

	return fn(api)
}

func renderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "watch",
			Aliases: []string{"w"},
			Usage:   "Keep refreshing the trace until the run finishes",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "Trace refresh interval with --watch",
			Value: trace.DefaultInterval,
		},
		&cli.BoolFlag{
			Name:    "all",
			Aliases: []string{"a"},
			Usage:   "Expand every level of the tree",
		},
		&cli.BoolFlag{
			Name:  "collapse",
			Usage: "Collapse the whole tree",
		},
		&cli.StringSliceFlag{
			Name:  "toggle",
			Usage: "Flip the expansion of this run (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "logs",
			Usage: "Show LLM and tool interactions of this run (repeatable)",
		},
		&cli.StringFlag{
			Name:  "node",
			Usage: "Render only the subtree of this run",
		},
		&cli.BoolFlag{
			Name:  "color",
			Usage: "Colour the tree using the terminal profile",
			Value: true,
		},
	}
}

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Trigger a run of an entity",
		ArgsUsage: "<entity-id>",
		Flags: append(renderFlags(),
			&cli.StringSliceFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Input value for a prompt variable, as name=value (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the prompts filled with the inputs instead of starting a run",
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			entityID := command.Args().First()
			if entityID == "" {
				return ErrEntityIDRequired
			}

			input, err := template.ParseAssignments(command.StringSlice("input"))
			if err != nil {
				return err
			}

			return withAPI(ctx, command, func(api services.API) error {
				if command.Bool("dry-run") {
					return preview(ctx, command.Root().Writer, api, entityID, input)
				}

				traces := services.NewTraces(services.TracesConfig{API: api})
				defer traces.Close()

				runID, err := traces.Trigger(ctx, services.TriggerRequest{EntityID: entityID, InputData: input})
				if err != nil {
					return err
				}

				fmt.Fprintln(command.Root().Writer, runID)

				if !command.Bool("watch") {
					return nil
				}

				return showTrace(ctx, command, api, runID)
			})
		},
	}
}

func NewTraceCommand() *cli.Command {
	return &cli.Command{
		Name:      "trace",
		Usage:     "Show the execution tree of a run",
		ArgsUsage: "<run-id>",
		Flags:     renderFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			runID := command.Args().First()
			if runID == "" {
				return ErrRunIDRequired
			}

			return withAPI(ctx, command, func(api services.API) error {
				return showTrace(ctx, command, api, runID)
			})
		},
	}
}

// preview prints every inline prompt of the entity with the inputs filled
// in, followed by the variables still missing.
func preview(ctx context.Context, out io.Writer, api services.API, entityID string, input map[string]any) error {
	e, err := api.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}

	var missing []string

	for _, step := range e.Steps() {
		if step.Target.PromptTemplate == "" {
			continue
		}

		fmt.Fprintf(out, "%s: %s\n", step.StepID, template.Render(step.Target.PromptTemplate, input))

		for _, name := range template.Missing(step.Target.PromptTemplate, input) {
			if !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
		}
	}

	if len(missing) > 0 {
		fmt.Fprintf(out, "missing: %s\n", strings.Join(missing, ", "))
	}

	return nil
}

// showTrace prints the run once, or with --watch prints every status change
// and the full tree once the run is over.
func showTrace(ctx context.Context, command *cli.Command, api services.API, runID string) error {
	out := command.Root().Writer

	traces := services.NewTraces(services.TracesConfig{
		API:    api,
		Poller: trace.PollerConfig{Interval: command.Duration("interval")},
	})
	defer traces.Close()

	if !command.Bool("watch") {
		view, err := traces.Get(ctx, runID)
		if err != nil {
			return err
		}

		return renderView(out, command, view)
	}

	stream, err := traces.Stream(ctx, runID)
	if err != nil {
		return err
	}

	var (
		last   *models.ExecutionRun
		status models.RunStatus
		failed error
	)

	for event := range stream {
		switch e := event.(type) {
		case *events.TraceSnapshot:
			last = e.Run
			if e.Run.Status != status {
				status = e.Run.Status
				fmt.Fprintf(out, "%s %s\n", runID, status)
			}
		case *events.TraceFinished:
			if e.Error != "" {
				failed = fmt.Errorf("stopped watching %s: %s", runID, e.Error)
			}
		}
	}

	if last != nil {
		if err := renderView(out, command, services.NewRunView(last)); err != nil {
			return err
		}
	}

	if failed != nil {
		return failed
	}

	return ctx.Err()
}

func renderView(out io.Writer, command *cli.Command, view *services.RunView) error {
	root := view.Run

	if id := command.String("node"); id != "" {
		node, ok := trace.Find(view.Run, id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
		}

		root = node
	}

	state := trace.NewExpandState()

	switch {
	case command.Bool("all"):
		state.ExpandAll()
	case command.Bool("collapse"):
		state.CollapseAll()
	}

	for _, id := range command.StringSlice("toggle") {
		if depth, ok := depthOf(root, id); ok {
			state.Toggle(id, depth)
		}
	}

	for _, id := range command.StringSlice("logs") {
		state.ToggleLogs(id)
	}

	if err := trace.Render(out, root, state, trace.RenderOptions{Color: command.Bool("color")}); err != nil {
		return err
	}

	totals := view.Totals
	if root != view.Run {
		totals = trace.Aggregate(root)
	}

	fmt.Fprintln(out, totalsLine(totals))

	return nil
}

// depthOf finds the depth of id below run, breadth first so a run reachable
// twice reports its shallowest position.
func depthOf(run *models.ExecutionRun, id string) (int, bool) {
	seen := map[string]bool{}
	level := []*models.ExecutionRun{run}

	for depth := 0; len(level) > 0; depth++ {
		var next []*models.ExecutionRun

		for _, r := range level {
			if r == nil || seen[r.ID] {
				continue
			}

			if r.ID == id {
				return depth, true
			}

			seen[r.ID] = true
			next = append(next, r.ChildRuns...)
		}

		level = next
	}

	return 0, false
}

func totalsLine(t trace.Totals) string {
	parts := []string{"total"}

	if t.CostReported {
		parts = append(parts, fmt.Sprintf("$%.4f", t.CostUSD))
	}

	if t.TokensReported {
		parts = append(parts, fmt.Sprintf("%d tokens", t.Tokens))
	}

	if t.WallTimeReported && t.WallTimeMS != nil {
		parts = append(parts, trace.FormatDuration(*t.WallTimeMS))
	}

	if len(parts) == 1 {
		parts = append(parts, "n/a")
	}

	return strings.Join(parts, "  ")
}

func NewRunsListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List recent runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of runs to list (1-100)",
				Value:   20,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			return withAPI(ctx, command, func(api services.API) error {
				runs, err := services.NewTraces(services.TracesConfig{API: api}).List(ctx, command.Int("limit"))
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(command.Root().Writer, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tENTITY\tSTATUS\tSTARTED")

				for _, run := range runs {
					started := "-"
					if run.StartedAt != nil {
						started = run.StartedAt.Format("2006-01-02 15:04:05")
					}

					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", run.ID, run.DisplayName(), run.Status, started)
				}

				return w.Flush()
			})
		},
	}
}

func NewCheckpointsListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List checkpoints waiting for a decision",
		Action: func(ctx context.Context, command *cli.Command) error {
			return withAPI(ctx, command, func(api services.API) error {
				pending, err := services.NewCheckpoints(services.CheckpointsConfig{API: api}).Pending(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(command.Root().Writer, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tRUN\tTRIGGER\tREQUESTED")

				for _, cp := range pending {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cp.ID, cp.RunID, cp.CheckpointTrigger, cp.RequestedAt.Format("2006-01-02 15:04:05"))
				}

				return w.Flush()
			})
		},
	}
}

func NewCheckpointsRespondCommand() *cli.Command {
	return &cli.Command{
		Name:      "respond",
		Usage:     "Approve or reject a checkpoint",
		ArgsUsage: "<checkpoint-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "approve", Usage: "Let the run continue"},
			&cli.BoolFlag{Name: "reject", Usage: "Stop the run"},
			&cli.StringFlag{Name: "notes", Usage: "Notes recorded with the decision"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			id := command.Args().First()
			if id == "" {
				return ErrCheckpointIDRequired
			}

			resp, err := decision(command)
			if err != nil {
				return err
			}

			return withAPI(ctx, command, func(api services.API) error {
				cp, err := services.NewCheckpoints(services.CheckpointsConfig{API: api}).Respond(ctx, id, resp)
				if err != nil {
					return err
				}

				fmt.Fprintf(command.Root().Writer, "%s %s\n", cp.ID, cp.Status)

				return nil
			})
		},
	}
}

func decision(command *cli.Command) (models.CheckpointResponse, error) {
	approve, reject := command.Bool("approve"), command.Bool("reject")
	if approve == reject {
		return models.CheckpointResponse{}, ErrDecisionRequired
	}

	status := models.CheckpointStatusApproved
	if reject {
		status = models.CheckpointStatusRejected
	}

	return models.CheckpointResponse{Status: status, Notes: command.String("notes")}, nil
}
