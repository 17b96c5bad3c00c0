// Package trace aggregates, renders and polls recursive execution runs.
package trace

import (
	"github.com/dukex/composer/pkg/models"
)

// ChildSpread is the wall time of one direct child. Spreads are listed, never summed.
type ChildSpread struct {
	RunID      string `json:"run_id"`
	Name       string `json:"name"`
	WallTimeMS *int64 `json:"wall_time_ms,omitempty"`
}

// Totals summarizes one run and its descendants.
type Totals struct {
	CostUSD          float64       `json:"cost_usd"`
	Tokens           int64         `json:"tokens"`
	CostReported     bool          `json:"cost_reported"`
	TokensReported   bool          `json:"tokens_reported"`
	WallTimeMS       *int64        `json:"wall_time_ms,omitempty"`
	WallTimeReported bool          `json:"wall_time_reported"`
	ChildSpreads     []ChildSpread `json:"child_spreads,omitempty"`
	// FailedDescendants counts failed runs strictly below this one.
	FailedDescendants int `json:"failed_descendants"`
	// Cycles holds run ids met twice during traversal. Their subtrees are skipped.
	Cycles []string `json:"cycles,omitempty"`
}

// Aggregate computes the totals of run. Executor-reported totals win over
// anything derived from logs or children, including a reported zero.
func Aggregate(run *models.ExecutionRun) Totals {
	if run == nil {
		return Totals{}
	}

	a := &aggregator{visited: map[string]bool{}}

	return a.walk(run)
}

// AggregateTree computes totals for every run reachable from run, keyed by run id.
func AggregateTree(run *models.ExecutionRun) map[string]Totals {
	out := map[string]Totals{}
	if run == nil {
		return out
	}

	a := &aggregator{visited: map[string]bool{}, out: out}
	a.walk(run)

	return out
}

type aggregator struct {
	visited map[string]bool
	out     map[string]Totals
}

func (a *aggregator) walk(run *models.ExecutionRun) Totals {
	a.visited[run.ID] = true

	var (
		totals Totals
		cost   float64
		tokens int64
	)

	for _, l := range run.LLMLogs {
		if l.CostUSD != nil {
			cost += *l.CostUSD
		}

		tokens += l.PromptTokens + l.CompletionTokens
	}

	for _, l := range run.ToolLogs {
		if l.CostUSD != nil {
			cost += *l.CostUSD
		}

		tokens += l.Tokens
	}

	for _, child := range run.ChildRuns {
		if child == nil {
			continue
		}

		if a.visited[child.ID] {
			totals.Cycles = append(totals.Cycles, child.ID)

			continue
		}

		sub := a.walk(child)
		cost += sub.CostUSD
		tokens += sub.Tokens

		totals.FailedDescendants += sub.FailedDescendants
		if child.Status == models.RunStatusFailed {
			totals.FailedDescendants++
		}

		totals.Cycles = append(totals.Cycles, sub.Cycles...)
		totals.ChildSpreads = append(totals.ChildSpreads, ChildSpread{
			RunID:      child.ID,
			Name:       child.DisplayName(),
			WallTimeMS: sub.WallTimeMS,
		})
	}

	totals.CostUSD = cost
	totals.Tokens = tokens

	if run.TotalCostUSD != nil {
		totals.CostUSD = *run.TotalCostUSD
		totals.CostReported = true
	}

	if run.TotalTokens != nil {
		totals.Tokens = *run.TotalTokens
		totals.TokensReported = true
	}

	totals.WallTimeMS, totals.WallTimeReported = wallTime(run)

	if a.out != nil {
		a.out[run.ID] = totals
	}

	return totals
}

func wallTime(run *models.ExecutionRun) (*int64, bool) {
	if run.ExecutionTimeMS != nil {
		ms := *run.ExecutionTimeMS

		return &ms, true
	}

	if run.StartedAt == nil || run.CompletedAt == nil {
		return nil, false
	}

	ms := run.CompletedAt.Sub(*run.StartedAt).Milliseconds()

	return &ms, false
}

// FailedDescendants returns the ids of failed runs below run, depth first.
// The parent's own status is left as reported.
func FailedDescendants(run *models.ExecutionRun) []string {
	if run == nil {
		return nil
	}

	var (
		failed  []string
		visited = map[string]bool{run.ID: true}
		visit   func(r *models.ExecutionRun)
	)

	visit = func(r *models.ExecutionRun) {
		for _, child := range r.ChildRuns {
			if child == nil || visited[child.ID] {
				continue
			}

			visited[child.ID] = true

			if child.Status == models.RunStatusFailed {
				failed = append(failed, child.ID)
			}

			visit(child)
		}
	}

	visit(run)

	return failed
}

// Find returns the run with the given id in the tree.
func Find(run *models.ExecutionRun, id string) (*models.ExecutionRun, bool) {
	if run == nil {
		return nil, false
	}

	visited := map[string]bool{}
	stack := []*models.ExecutionRun{run}

	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if r == nil || visited[r.ID] {
			continue
		}

		visited[r.ID] = true

		if r.ID == id {
			return r, true
		}

		stack = append(stack, r.ChildRuns...)
	}

	return nil, false
}
