package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTraceSnapshot_CarriesAggregates(t *testing.T) {
	child := testutil.CreateTestRun(testutil.WithRunStatus(models.RunStatusFailed))
	run := testutil.CreateTestRun(
		testutil.WithLLMLog(0.02, 100, 50),
		testutil.WithChildren(child),
	)

	snapshot := NewTraceSnapshot(run)

	require.NoError(t, snapshot.Validate())
	assert.Equal(t, TraceSnapshotEvent, snapshot.GetType())
	assert.Equal(t, run.ID, snapshot.RunID)
	assert.InDelta(t, 0.02, snapshot.Totals.CostUSD, 1e-9)
	assert.Equal(t, []string{child.ID}, snapshot.FailedDescendants)

	data, err := json.Marshal(snapshot)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"trace.snapshot"`)
	assert.Contains(t, string(data), `"run_id":"`+run.ID+`"`)
}

func TestEvents_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		event   interface{ Validate() error }
		wantErr error
	}{
		{"snapshot_without_run", NewTraceSnapshot(nil), ErrRunIDRequired},
		{"snapshot_without_tree", &TraceSnapshot{RunID: "r"}, ErrRunRequired},
		{"finished", NewTraceFinished("r", models.RunStatusCompleted, nil), nil},
		{"finished_without_run", NewTraceFinished("", "", errors.New("x")), ErrRunIDRequired},
		{"responded_without_id", NewCheckpointResponded("", models.CheckpointResponse{Status: models.CheckpointStatusApproved}), ErrCheckpointIDRequired},
		{"saved_without_session", NewEntitySaved("", testutil.CreateTestEntity(), true), ErrSessionIDRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.event.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)

				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewCheckpointsRefreshed_NeverNil(t *testing.T) {
	event := NewCheckpointsRefreshed(nil)

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pending":[]`)
}
