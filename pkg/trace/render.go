package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dukex/composer/pkg/models"
	"github.com/muesli/termenv"
)

type RenderOptions struct {
	// Color enables ANSI colours using the environment's colour profile.
	Color bool
	// Indent per depth level. Defaults to two spaces.
	Indent string
}

var statusColors = map[models.RunStatus]string{
	models.RunStatusPending:   "8",
	models.RunStatusRunning:   "4",
	models.RunStatusCompleted: "2",
	models.RunStatusFailed:    "1",
	models.RunStatusRepairing: "3",
}

// Render writes run as an indented tree honouring state.
func Render(w io.Writer, run *models.ExecutionRun, state *ExpandState, opts RenderOptions) error {
	if run == nil {
		return nil
	}

	if state == nil {
		state = NewExpandState()
	}

	if opts.Indent == "" {
		opts.Indent = "  "
	}

	profile := termenv.Ascii
	if opts.Color {
		profile = termenv.EnvColorProfile()
	}

	r := &renderer{
		out:     termenv.NewOutput(w, termenv.WithProfile(profile)),
		state:   state,
		opts:    opts,
		totals:  AggregateTree(run),
		visited: map[string]bool{},
	}

	r.node(run, 0)

	return r.err
}

type renderer struct {
	out     *termenv.Output
	state   *ExpandState
	opts    RenderOptions
	totals  map[string]Totals
	visited map[string]bool
	err     error
}

func (r *renderer) printf(depth int, format string, args ...any) {
	if r.err != nil {
		return
	}

	_, r.err = fmt.Fprintf(r.out, strings.Repeat(r.opts.Indent, depth)+format+"\n", args...)
}

func (r *renderer) style(s, color string) string {
	return r.out.String(s).Foreground(r.out.Color(color)).String()
}

func (r *renderer) node(run *models.ExecutionRun, depth int) {
	if r.visited[run.ID] {
		r.printf(depth, "%s %s", r.style("↻", "3"), run.ID+" (cycle)")

		return
	}

	r.visited[run.ID] = true

	expanded := r.state.IsExpanded(run.ID, depth)

	marker := "•"
	if len(run.ChildRuns) > 0 {
		marker = "▸"
		if expanded {
			marker = "▾"
		}
	}

	r.printf(depth, "%s %s", marker, r.headline(run))

	if failed := r.totals[run.ID].FailedDescendants; failed > 0 && run.Status != models.RunStatusFailed {
		r.printf(depth+1, "%s", r.style(fmt.Sprintf("! %d failed descendant(s)", failed), "1"))
	}

	if reasoning := run.Reasoning(); reasoning != "" {
		r.printf(depth+1, "reasoning: %s", reasoning)
	}

	if len(run.ResultData) > 0 {
		r.printf(depth+1, "result: %s", compactJSON(run.ResultData))
	}

	if run.ErrorMessage != "" {
		r.printf(depth+1, "%s", r.style("error: "+run.ErrorMessage, "1"))
	}

	if r.state.ShowLogs(run.ID) {
		r.logs(run, depth+1)
	} else if n := len(run.LLMLogs) + len(run.ToolLogs); n > 0 {
		r.printf(depth+1, "%s", r.out.String(fmt.Sprintf("(%d interactions hidden)", n)).Faint().String())
	}

	if !expanded {
		return
	}

	for _, child := range run.ChildRuns {
		if child != nil {
			r.node(child, depth+1)
		}
	}
}

func (r *renderer) headline(run *models.ExecutionRun) string {
	parts := []string{r.out.String(run.DisplayName()).Bold().String()}

	if run.Entity != nil && run.Entity.Type != "" {
		parts = append(parts, "["+string(run.Entity.Type)+"]")
	}

	parts = append(parts, r.style(string(run.Status), statusColors[run.Status]))

	totals := r.totals[run.ID]

	if totals.WallTimeMS != nil {
		parts = append(parts, FormatDuration(*totals.WallTimeMS))
	}

	if totals.CostUSD > 0 || totals.CostReported {
		parts = append(parts, fmt.Sprintf("$%.4f", totals.CostUSD))
	}

	if totals.Tokens > 0 || totals.TokensReported {
		parts = append(parts, fmt.Sprintf("%d tok", totals.Tokens))
	}

	return strings.Join(parts, " ")
}

func (r *renderer) logs(run *models.ExecutionRun, depth int) {
	for _, l := range run.LLMLogs {
		line := fmt.Sprintf("llm %s/%s %d+%d tok %s", l.ModelProvider, l.ModelName,
			l.PromptTokens, l.CompletionTokens, FormatDuration(l.LatencyMS))
		if l.CostUSD != nil {
			line += fmt.Sprintf(" $%.4f", *l.CostUSD)
		}

		r.printf(depth, "%s", line)

		if l.InputPrompt != "" {
			r.printf(depth+1, "> %s", l.InputPrompt)
		}

		if l.OutputResponse != "" {
			r.printf(depth+1, "< %s", l.OutputResponse)
		}
	}

	for _, l := range run.ToolLogs {
		line := fmt.Sprintf("tool %s %s", l.ToolName, FormatDuration(l.LatencyMS))
		if l.Error != "" {
			line += " " + r.style("error: "+l.Error, "1")
		}

		r.printf(depth, "%s", line)
	}
}

// FormatDuration renders milliseconds as 850ms, 2.0s or 1m05s.
func FormatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond

	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", ms)
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	return string(b)
}
