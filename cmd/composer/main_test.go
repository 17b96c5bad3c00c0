package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/composer/pkg/client"
	"github.com/dukex/composer/pkg/convert"
	"github.com/dukex/composer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

// run executes the CLI with a session token, as an operator would after login.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	return runAnonymous(t, append([]string{"--token", testToken}, args...)...)
}

func runAnonymous(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Setenv("COMPOSER_TOKEN", "")
	t.Setenv("COMPOSER_REFRESH_TOKEN", "")

	var out bytes.Buffer

	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out

	err := app.Run(t.Context(), append([]string{"composer"}, args...))

	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

const skillYAML = `
name: research_skill
entity_type: SKILL
version: 1.0.0
status: DRAFT
planning:
  static_plan:
    enabled: true
    steps:
      - step_id: s1
        order: 1
        name: research
        required: true
        target:
          entity_id: child-1
`

const graphJSON = `{
	"nodes": [
		{"id": "root", "type": "root", "position": {"x": 250, "y": 50}},
		{"id": "n1", "type": "entityNode", "seq": 1, "data": {"label": "child", "entity_ref": {"id": "child-1"}}}
	],
	"edges": [{"id": "e-root-n1", "source": "root", "target": "n1"}]
}`

func TestValidate_Entity(t *testing.T) {
	out, err := run(t, "validate", writeFile(t, "skill.yaml", skillYAML))
	require.NoError(t, err)
	assert.Contains(t, out, `SKILL "research_skill" is valid`)
}

func TestValidate_SchemaIssues(t *testing.T) {
	out, err := run(t, "validate", writeFile(t, "bad.json", `{"entity_type":"WIDGET","status":"LIVE"}`))
	require.ErrorIs(t, err, ErrInvalidFile)
	assert.Contains(t, err.Error(), "3 schema issues")
	assert.NotEmpty(t, out)
}

func TestValidate_Graph(t *testing.T) {
	out, err := run(t, "validate", "--graph", writeFile(t, "graph.json", graphJSON))
	require.NoError(t, err)
	assert.Contains(t, out, "graph shape: chain, 2 nodes, 1 edges")
}

func TestValidate_RequiresFile(t *testing.T) {
	_, err := run(t, "validate")
	assert.ErrorIs(t, err, ErrFileRequired)
}

func TestConvert(t *testing.T) {
	out, err := run(t, "convert", writeFile(t, "graph.json", graphJSON))
	require.NoError(t, err)

	var plan convert.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "child-1", plan.Steps[0].Target.EntityID)
	assert.Equal(t, 1, plan.Steps[0].Order)
}

func TestConvert_RejectsSelfReference(t *testing.T) {
	_, err := run(t, "convert", "--entity-id", "child-1", writeFile(t, "graph.json", graphJSON))
	require.Error(t, err)
	assert.True(t, convert.IsConversionError(err))
}

func TestExplode_ToYAMLFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "graph.yaml")

	_, err := run(t, "explode", "--output", target, writeFile(t, "skill.yaml", skillYAML))
	require.NoError(t, err)

	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "entity_ref")

	out, err := run(t, "validate", "--graph", target)
	require.NoError(t, err)
	assert.Contains(t, out, "chain")
}

func TestExplode_Action(t *testing.T) {
	_, err := run(t, "explode", writeFile(t, "action.json", `{"name":"a","entity_type":"ACTION","version":"1","status":"DRAFT"}`))
	assert.ErrorIs(t, err, convert.ErrNotComposite)
}

func fakeAPI(t *testing.T) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ai/executions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "run-1", "entity_id": "research_skill", "status": "COMPLETED"},
		})
	})
	mux.HandleFunc("GET /ai/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":        r.PathValue("id"),
			"entity_id": "research_skill",
			"status":    "COMPLETED",
			"child_runs": []map[string]any{
				{"id": "child-1", "entity_id": "summarize", "status": "FAILED", "error_message": "boom"},
			},
		})
	})
	mux.HandleFunc("GET /ai/entities/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": r.PathValue("id"), "name": "summarizer", "entity_type": "ACTION", "version": "1", "status": "ACTIVE",
			"planning": map[string]any{"static_plan": map[string]any{"enabled": true, "steps": []map[string]any{
				{"step_id": "prompt", "order": 1, "target": map[string]any{"prompt_template": "Summarize {{text}} for {{audience}}"}},
			}}},
		})
	})
	mux.HandleFunc("POST /ai/approvals/{id}/respond", func(w http.ResponseWriter, r *http.Request) {
		var resp models.CheckpointResponse
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&resp))

		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "status": resp.Status})
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv.URL
}

func TestRunsList(t *testing.T) {
	out, err := run(t, "--api-url", fakeAPI(t), "runs", "list", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "COMPLETED")
}

func TestRunsList_WithoutCredentials(t *testing.T) {
	out, err := runAnonymous(t, "--api-url", fakeAPI(t), "runs", "list")
	require.ErrorIs(t, err, client.ErrNoCredentials)
	assert.NotContains(t, out, "run-1")
}

func TestRun_DryRun(t *testing.T) {
	out, err := run(t, "--api-url", fakeAPI(t), "run", "--dry-run", "--input", "text=a, b", "summarizer")
	require.NoError(t, err)
	assert.Contains(t, out, "prompt: Summarize a, b for {{audience}}")
	assert.Contains(t, out, "missing: audience")
}

func TestRun_RejectsBadInput(t *testing.T) {
	_, err := run(t, "run", "--input", "novalue", "summarizer")
	assert.ErrorContains(t, err, "expected key=value")
}

func TestTrace(t *testing.T) {
	out, err := run(t, "--api-url", fakeAPI(t), "trace", "--color=false", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "research_skill COMPLETED")
	assert.Contains(t, out, "summarize FAILED")
	assert.Contains(t, out, "error: boom")
	assert.Contains(t, out, "total")
}

func TestCheckpointsRespond(t *testing.T) {
	out, err := run(t, "--api-url", fakeAPI(t), "checkpoints", "respond", "--reject", "--notes", "no", "cp-1")
	require.NoError(t, err)
	assert.Contains(t, out, "cp-1 REJECTED")
}

func TestCheckpointsRespond_NeedsOneDecision(t *testing.T) {
	_, err := run(t, "checkpoints", "respond", "--approve", "--reject", "cp-1")
	require.ErrorIs(t, err, ErrDecisionRequired)

	_, err = run(t, "checkpoints", "respond", "cp-1")
	require.ErrorIs(t, err, ErrDecisionRequired)
}

func TestTrace_Node(t *testing.T) {
	out, err := run(t, "--api-url", fakeAPI(t), "trace", "--color=false", "--node", "child-1", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "summarize FAILED")
	assert.NotContains(t, out, "research_skill")

	_, err = run(t, "--api-url", fakeAPI(t), "trace", "--node", "nope", "run-1")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestTrace_Collapse(t *testing.T) {
	out, err := run(t, "--api-url", fakeAPI(t), "trace", "--color=false", "--collapse", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "research_skill COMPLETED")
	assert.Contains(t, out, "1 failed descendant")
	assert.NotContains(t, out, "summarize FAILED")

	out, err = run(t, "--api-url", fakeAPI(t), "trace", "--color=false", "--collapse", "--toggle", "run-1", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "summarize FAILED")
}
