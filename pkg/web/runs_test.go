package web_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/dukex/composer/pkg/client"
	"github.com/dukex/composer/pkg/events"
	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/services"
	"github.com/dukex/composer/pkg/testutil"
	"github.com/dukex/composer/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAPIHandlers_TriggerRun(t *testing.T) {
	t.Parallel()

	action := testutil.CreateTestAction()

	api := newAPI()
	api.On("GetEntity", mock.Anything, action.ID).Return(action, nil)
	api.On("TriggerExecution", mock.Anything, mock.Anything).Return("run-1", nil)

	app := setupTestApp(t, api)

	status, body := call(t, app, http.MethodPost, "/runs", services.TriggerRequest{EntityID: action.ID})
	require.Equal(t, http.StatusBadRequest, status)

	var problem struct {
		Code   string   `json:"code"`
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(body, &problem))
	assert.Equal(t, "missing_inputs", problem.Code)
	assert.Equal(t, []string{"text"}, problem.Errors)

	status, body = call(t, app, http.MethodPost, "/runs", services.TriggerRequest{
		EntityID:  action.ID,
		InputData: map[string]any{"text": "hello"},
	})
	require.Equal(t, http.StatusAccepted, status, string(body))

	var triggered web.TriggerRunResponse
	require.NoError(t, json.Unmarshal(body, &triggered))
	assert.Equal(t, "run-1", triggered.RunID)
}

func TestAPIHandlers_GetRun(t *testing.T) {
	t.Parallel()

	child := testutil.CreateTestRun(testutil.WithRunStatus(models.RunStatusFailed), testutil.WithLLMLog(0.02, 100, 0))
	run := testutil.CreateTestRun(testutil.WithLLMLog(0.01, 40, 10), testutil.WithChildren(child))

	api := newAPI()
	api.On("GetRun", mock.Anything, run.ID).Return(run, nil)
	api.On("GetRun", mock.Anything, "missing").Return(nil, &client.Error{StatusCode: http.StatusNotFound, Code: "not_found"})

	app := setupTestApp(t, api)

	status, body := call(t, app, http.MethodGet, "/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, status)

	var view struct {
		Totals struct {
			CostUSD float64 `json:"cost_usd"`
			Tokens  int64   `json:"tokens"`
		} `json:"totals"`
		FailedDescendants []string `json:"failed_descendants"`
	}
	require.NoError(t, json.Unmarshal(body, &view))
	assert.InDelta(t, 0.03, view.Totals.CostUSD, 1e-9)
	assert.Equal(t, int64(150), view.Totals.Tokens)
	assert.Equal(t, []string{child.ID}, view.FailedDescendants)

	status, _ = call(t, app, http.MethodGet, "/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_ListRuns(t *testing.T) {
	t.Parallel()

	api := newAPI()
	api.On("ListRuns", mock.Anything, 5).Return([]models.ExecutionRun{*testutil.CreateTestRun()}, nil)

	app := setupTestApp(t, api)

	status, body := call(t, app, http.MethodGet, "/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, status)

	var runs []models.ExecutionRun
	require.NoError(t, json.Unmarshal(body, &runs))
	assert.Len(t, runs, 1)

	status, _ = call(t, app, http.MethodGet, "/runs?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_StreamRun(t *testing.T) {
	t.Parallel()

	run := testutil.CreateTestRun()

	api := newAPI()
	api.On("GetRun", mock.Anything, run.ID).Return(run, nil)

	app := setupTestApp(t, api)

	status, body := call(t, app, http.MethodGet, "/runs/"+run.ID+"/stream", nil)
	require.Equal(t, http.StatusOK, status)

	stream := string(body)
	assert.Contains(t, stream, "event: "+string(events.TraceSnapshotEvent))
	assert.Contains(t, stream, "event: "+string(events.TraceFinishedEvent))
	assert.Less(t, strings.Index(stream, string(events.TraceSnapshotEvent)), strings.Index(stream, string(events.TraceFinishedEvent)))
}

func TestAPIHandlers_Checkpoints(t *testing.T) {
	t.Parallel()

	response := models.CheckpointResponse{Status: models.CheckpointStatusRejected, Notes: "wrong recipient"}

	api := newAPI()
	api.On("ListPendingCheckpoints", mock.Anything).Return([]models.Checkpoint{{ID: "cp-1", RunID: "run-1", Status: models.CheckpointStatusPending}}, nil).Once()
	api.On("ListPendingCheckpoints", mock.Anything).Return(nil, client.ErrTransport)
	api.On("RespondCheckpoint", mock.Anything, "cp-1", response).Return(&models.Checkpoint{ID: "cp-1", Status: models.CheckpointStatusRejected}, nil)

	app := setupTestApp(t, api)

	status, body := call(t, app, http.MethodGet, "/checkpoints", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "cp-1")

	status, _ = call(t, app, http.MethodGet, "/checkpoints", nil)
	assert.Equal(t, http.StatusBadGateway, status)

	status, body = call(t, app, http.MethodGet, "/checkpoints?cached=true", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "cp-1")

	status, _ = call(t, app, http.MethodPost, "/checkpoints/cp-1/respond", models.CheckpointResponse{Status: "MAYBE"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = call(t, app, http.MethodPost, "/checkpoints/cp-1/respond", response)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), "REJECTED")
}
