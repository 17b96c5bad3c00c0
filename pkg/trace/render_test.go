package trace_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/testutil"
	"github.com/dukex/composer/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() (*models.ExecutionRun, *models.ExecutionRun, *models.ExecutionRun) {
	leaf := testutil.CreateTestRun(
		testutil.WithRunStatus(models.RunStatusFailed),
		testutil.WithLLMLog(0.01, 10, 5),
	)
	leaf.Entity = &models.EntitySummary{Name: "summarize", Type: models.EntityTypeAction}
	leaf.ErrorMessage = "model refused"

	child := testutil.CreateTestRun(testutil.WithChildren(leaf))
	child.Entity = &models.EntitySummary{Name: "research", Type: models.EntityTypeSkill}

	root := testutil.CreateTestRun(testutil.WithChildren(child))
	root.Entity = &models.EntitySummary{DisplayName: "Onboarding", Type: models.EntityTypeProcess}
	root.ContextState = map[string]any{"reasoning": "split into research then summary"}
	root.ResultData = map[string]any{"ok": true}

	return root, child, leaf
}

func TestRender_DefaultDepth(t *testing.T) {
	root, _, _ := sampleTree()

	var buf bytes.Buffer
	require.NoError(t, trace.Render(&buf, root, nil, trace.RenderOptions{}))

	out := buf.String()
	assert.Contains(t, out, "▾ Onboarding [PROCESS] COMPLETED 2.0s $0.0100 15 tok")
	assert.Contains(t, out, "reasoning: split into research then summary")
	assert.Contains(t, out, `result: {"ok":true}`)
	assert.Contains(t, out, "! 1 failed descendant(s)")
	assert.Contains(t, out, "  ▾ research [SKILL] COMPLETED")
	assert.Contains(t, out, "    • summarize [ACTION] FAILED")
	assert.Contains(t, out, "error: model refused")
	assert.Contains(t, out, "(1 interactions hidden)")
	assert.NotContains(t, out, "\x1b[", "no colour without Color")
}

func TestRender_CollapseAndLogs(t *testing.T) {
	root, child, leaf := sampleTree()

	state := trace.NewExpandState()
	assert.True(t, state.ToggleLogs(leaf.ID))

	var buf bytes.Buffer
	require.NoError(t, trace.Render(&buf, root, state, trace.RenderOptions{}))
	assert.Contains(t, buf.String(), "llm openai/gpt-4o 10+5 tok 250ms $0.0100")

	assert.False(t, state.Toggle(child.ID, 1))

	buf.Reset()
	require.NoError(t, trace.Render(&buf, root, state, trace.RenderOptions{}))

	out := buf.String()
	assert.Contains(t, out, "  ▸ research [SKILL] COMPLETED")
	assert.NotContains(t, out, "summarize")
}

func TestRender_HiddenLogsAreCounted(t *testing.T) {
	run := testutil.CreateTestRun(testutil.WithLLMLog(0.01, 1, 1))

	var buf bytes.Buffer
	require.NoError(t, trace.Render(&buf, run, trace.NewExpandState(), trace.RenderOptions{}))

	assert.Contains(t, buf.String(), "(1 interactions hidden)")
}

func TestRender_Cycle(t *testing.T) {
	run := testutil.CreateTestRun()
	run.ChildRuns = []*models.ExecutionRun{run}

	var buf bytes.Buffer
	require.NoError(t, trace.Render(&buf, run, nil, trace.RenderOptions{}))

	assert.Contains(t, buf.String(), run.ID+" (cycle)")
}

func TestExpandState(t *testing.T) {
	state := trace.NewExpandState()

	assert.True(t, state.IsExpanded("a", 0))
	assert.True(t, state.IsExpanded("a", 1))
	assert.False(t, state.IsExpanded("a", 2))

	assert.False(t, state.Toggle("a", 0))
	assert.False(t, state.IsExpanded("a", 0))

	state.ExpandAll()
	assert.True(t, state.IsExpanded("a", 0))
	assert.True(t, state.IsExpanded("deep", 7))

	state.CollapseAll()
	assert.False(t, state.IsExpanded("root", 0))

	assert.True(t, state.Toggle("root", 0))
	assert.True(t, state.IsExpanded("root", 0))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "850ms", trace.FormatDuration(850))
	assert.Equal(t, "2.0s", trace.FormatDuration(2000))
	assert.Equal(t, "1m05s", trace.FormatDuration(65000))
}

func TestRender_DeepChainReportsFailureOnEveryAncestor(t *testing.T) {
	const depth = 300

	run := testutil.CreateTestRun(testutil.WithRunStatus(models.RunStatusFailed))
	for range depth - 1 {
		run = testutil.CreateTestRun(testutil.WithChildren(run))
	}

	state := trace.NewExpandState()
	state.ExpandAll()

	var buf bytes.Buffer
	require.NoError(t, trace.Render(&buf, run, state, trace.RenderOptions{Indent: " "}))

	assert.Equal(t, depth-1, strings.Count(buf.String(), "! 1 failed descendant(s)"))
}
