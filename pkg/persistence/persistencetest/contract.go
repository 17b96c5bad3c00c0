// Package persistencetest holds the behaviour every draft store must share.
package persistencetest

import (
	"testing"
	"time"

	"github.com/dukex/composer/pkg/graph"
	"github.com/dukex/composer/pkg/persistence"
	"github.com/dukex/composer/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDraft(updatedAt time.Time) *persistence.Draft {
	e := testutil.CreateTestEntity(testutil.WithSteps(testutil.EntityStep("step-1", "child-1")))

	return &persistence.Draft{
		SessionID: uuid.New().String(),
		EntityID:  e.ID,
		Entity:    e,
		Graph: graph.Graph{
			Nodes: []graph.Node{
				{ID: graph.RootID, Kind: graph.NodeKindRoot, Data: graph.NodeData{Label: e.Label()}},
				{ID: "step-1", Kind: graph.NodeKindEntity, Position: graph.Position{X: 250, Y: 200}, Seq: 1},
			},
			Edges: []graph.Edge{{ID: "e-root-step-1", Source: graph.RootID, Target: "step-1"}},
		},
		UpdatedAt: updatedAt.UTC().Truncate(time.Millisecond),
	}
}

// RunContract exercises a persistence.Persistence implementation.
func RunContract(t *testing.T, store persistence.Persistence) {
	t.Helper()

	ctx := t.Context()

	t.Run("save and load", func(t *testing.T) {
		draft := newDraft(time.Now())

		require.NoError(t, store.SaveDraft(ctx, draft))

		loaded, err := store.DraftByID(ctx, draft.SessionID)
		require.NoError(t, err)
		assert.Equal(t, draft.EntityID, loaded.EntityID)
		assert.Equal(t, draft.Entity.Name, loaded.Entity.Name)
		assert.Equal(t, draft.Entity.Steps(), loaded.Entity.Steps())
		assert.Equal(t, draft.Graph, loaded.Graph)
		assert.True(t, draft.UpdatedAt.Equal(loaded.UpdatedAt))
	})

	t.Run("save replaces", func(t *testing.T) {
		draft := newDraft(time.Now())
		require.NoError(t, store.SaveDraft(ctx, draft))

		draft.Entity.Description = "second version"
		require.NoError(t, store.SaveDraft(ctx, draft))

		loaded, err := store.DraftByID(ctx, draft.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "second version", loaded.Entity.Description)
	})

	t.Run("invalid draft", func(t *testing.T) {
		err := store.SaveDraft(ctx, &persistence.Draft{SessionID: uuid.New().String()})
		assert.ErrorIs(t, err, persistence.ErrInvalidDraft)
	})

	t.Run("missing draft", func(t *testing.T) {
		_, err := store.DraftByID(ctx, uuid.New().String())
		assert.True(t, persistence.IsDraftNotFound(err))
	})

	t.Run("delete", func(t *testing.T) {
		draft := newDraft(time.Now())
		require.NoError(t, store.SaveDraft(ctx, draft))
		require.NoError(t, store.DeleteDraft(ctx, draft.SessionID))

		_, err := store.DraftByID(ctx, draft.SessionID)
		assert.True(t, persistence.IsDraftNotFound(err))

		assert.True(t, persistence.IsDraftNotFound(store.DeleteDraft(ctx, draft.SessionID)))
	})

	t.Run("list newest first", func(t *testing.T) {
		older := newDraft(time.Now().Add(-time.Hour))
		newer := newDraft(time.Now().Add(time.Hour))

		require.NoError(t, store.SaveDraft(ctx, older))
		require.NoError(t, store.SaveDraft(ctx, newer))

		drafts, err := store.Drafts(ctx)
		require.NoError(t, err)

		ids := make([]string, 0, len(drafts))
		for _, d := range drafts {
			ids = append(ids, d.SessionID)
		}

		require.Contains(t, ids, older.SessionID)
		require.Contains(t, ids, newer.SessionID)
		assert.Equal(t, newer.SessionID, ids[0])
	})

	t.Run("health", func(t *testing.T) {
		assert.NoError(t, store.HealthCheck(ctx))
	})
}
