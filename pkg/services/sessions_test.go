package services_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/dukex/composer/pkg/client"
	"github.com/dukex/composer/pkg/editor"
	"github.com/dukex/composer/pkg/events"
	"github.com/dukex/composer/pkg/graph"
	"github.com/dukex/composer/pkg/mocks"
	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/persistence"
	"github.com/dukex/composer/pkg/persistence/file"
	"github.com/dukex/composer/pkg/services"
	"github.com/dukex/composer/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func catalogAPI() *mocks.MockAPI {
	api := &mocks.MockAPI{}

	child := testutil.CreateTestAction(testutil.WithID("child-1"), testutil.WithName("summarize"))
	api.On("ListEntities", mock.Anything).Return([]models.Entity{*child}, nil)
	api.On("GetEntity", mock.Anything, "child-1").Return(child, nil)
	api.On("ListTools", mock.Anything).Return([]models.Tool{{Name: "web_search"}}, nil)

	return api
}

func newSessions(t *testing.T, api services.API) (*services.Sessions, *file.Persistence) {
	t.Helper()

	drafts := file.NewPersistence(t.TempDir())

	return services.NewSessions(services.SessionsConfig{API: api, Drafts: drafts}), drafts
}

func TestSessions_OpenNewEntityAutosaves(t *testing.T) {
	api := catalogAPI()
	sessions, drafts := newSessions(t, api)
	ctx := t.Context()

	session, err := sessions.Open(ctx, services.OpenRequest{EntityType: models.EntityTypeSkill})
	require.NoError(t, err)

	_, err = sessions.Edit(ctx, session.ID(), func(s *editor.Session) error {
		_, err := s.AddLibraryEntity("child-1", graph.Position{X: 250, Y: 200})

		return err
	})
	require.NoError(t, err)

	draft, err := drafts.DraftByID(ctx, session.ID())
	require.NoError(t, err)
	assert.Empty(t, draft.EntityID)
	assert.Len(t, draft.Graph.Nodes, 2)

	assert.Len(t, sessions.List(), 1)
}

func TestSessions_OpenRejectsUnknownType(t *testing.T) {
	sessions, _ := newSessions(t, catalogAPI())

	_, err := sessions.Open(t.Context(), services.OpenRequest{EntityType: "WIDGET"})
	assert.True(t, services.IsValidationError(err))
}

func TestSessions_OpenMissingEntity(t *testing.T) {
	api := catalogAPI()
	api.On("GetEntity", mock.Anything, "gone").Return(nil, &client.Error{StatusCode: http.StatusNotFound, Code: "not_found"})

	sessions, _ := newSessions(t, api)

	_, err := sessions.Open(t.Context(), services.OpenRequest{EntityID: "gone"})
	assert.True(t, services.IsNotFoundError(err))
}

func TestSessions_EditAndSaveExistingEntity(t *testing.T) {
	existing := testutil.CreateTestEntity(testutil.WithSteps(testutil.EntityStep("step-1", "child-1")))

	stored := &models.Entity{}

	api := catalogAPI()
	api.On("GetEntity", mock.Anything, existing.ID).Return(existing, nil)
	api.On("UpdateEntity", mock.Anything, existing.ID, mock.AnythingOfType("*models.Entity")).
		Run(func(args mock.Arguments) { *stored = *args.Get(2).(*models.Entity) }).
		Return(stored, nil)

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, existing.ID, mock.AnythingOfType("*events.EntitySaved")).Return(nil)

	drafts := file.NewPersistence(t.TempDir())
	sessions := services.NewSessions(services.SessionsConfig{API: api, Drafts: drafts, Publisher: bus})
	ctx := t.Context()

	session, err := sessions.Open(ctx, services.OpenRequest{EntityID: existing.ID})
	require.NoError(t, err)

	_, err = drafts.DraftByID(ctx, session.ID())
	assert.True(t, persistence.IsDraftNotFound(err), "a clean session keeps no draft")

	_, err = sessions.Edit(ctx, session.ID(), func(s *editor.Session) error {
		return s.UpdateEntity(map[string]any{"description": "changed"})
	})
	require.NoError(t, err)

	draft, err := drafts.DraftByID(ctx, session.ID())
	require.NoError(t, err)
	assert.Equal(t, "changed", draft.Entity.Description)

	saved, err := sessions.Save(ctx, session.ID())
	require.NoError(t, err)
	assert.Equal(t, "changed", saved.Description)
	require.Len(t, saved.Steps(), 1)
	assert.Equal(t, "child-1", saved.Steps()[0].Target.EntityID)

	_, err = drafts.DraftByID(ctx, session.ID())
	assert.True(t, persistence.IsDraftNotFound(err))

	bus.AssertExpectations(t)

	published := bus.Calls[0].Arguments.Get(2).(*events.EntitySaved)
	assert.False(t, published.Created)
	assert.Equal(t, session.ID(), published.SessionID)
}

func TestSessions_SaveInvalidDraft(t *testing.T) {
	api := catalogAPI()
	sessions, _ := newSessions(t, api)

	session, err := sessions.Open(t.Context(), services.OpenRequest{EntityType: models.EntityTypeAction})
	require.NoError(t, err)

	_, err = sessions.Save(t.Context(), session.ID())
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))

	var serviceErr *services.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "validation_failed", serviceErr.Code)

	report, ok := serviceErr.Details.(editor.Report)
	require.True(t, ok)
	assert.True(t, report.FieldErrors.Has("logic_gate", "missing_section"))

	api.AssertNotCalled(t, "CreateEntity", mock.Anything, mock.Anything)
}

func TestSessions_SaveConflictKeepsDraft(t *testing.T) {
	existing := testutil.CreateTestEntity(testutil.WithSteps(testutil.EntityStep("step-1", "child-1")))

	api := catalogAPI()
	api.On("GetEntity", mock.Anything, existing.ID).Return(existing, nil)
	api.On("UpdateEntity", mock.Anything, existing.ID, mock.Anything).
		Return(nil, &client.Error{StatusCode: http.StatusConflict, Code: "conflict", Message: "name taken"})

	sessions, drafts := newSessions(t, api)
	ctx := t.Context()

	session, err := sessions.Open(ctx, services.OpenRequest{EntityID: existing.ID})
	require.NoError(t, err)

	_, err = sessions.Edit(ctx, session.ID(), func(s *editor.Session) error {
		return s.UpdateEntity(map[string]any{"name": "taken_name"})
	})
	require.NoError(t, err)

	_, err = sessions.Save(ctx, session.ID())
	assert.True(t, services.IsConflictError(err))

	view := session.View()
	assert.True(t, view.Dirty)
	assert.Equal(t, "taken_name", view.Entity.Name)
	require.Len(t, view.Banners, 1)
	assert.Equal(t, editor.CategoryConflict, view.Banners[0].Category)

	_, err = drafts.DraftByID(ctx, session.ID())
	assert.NoError(t, err)
}

func TestSessions_Restore(t *testing.T) {
	api := catalogAPI()
	drafts := file.NewPersistence(t.TempDir())
	ctx := t.Context()

	blank := editor.Blank(models.EntityTypeSkill)
	blank.Name = "restored_skill"

	require.NoError(t, drafts.SaveDraft(ctx, &persistence.Draft{
		SessionID: "session-1",
		Entity:    blank,
		Graph: graph.Graph{Nodes: []graph.Node{
			{ID: graph.RootID, Kind: graph.NodeKindRoot},
			{ID: "n1", Kind: graph.NodeKindEntity, Seq: 1},
		}},
		UpdatedAt: time.Now().UTC(),
	}))

	sessions := services.NewSessions(services.SessionsConfig{API: api, Drafts: drafts})

	restored, err := sessions.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	session, err := sessions.Get("session-1")
	require.NoError(t, err)

	view := session.View()
	assert.True(t, view.Dirty)
	assert.Equal(t, "restored_skill", view.Entity.Name)
	assert.Len(t, view.Graph.Nodes, 2)
}

func TestSessions_Close(t *testing.T) {
	sessions, drafts := newSessions(t, catalogAPI())
	ctx := t.Context()

	session, err := sessions.Open(ctx, services.OpenRequest{EntityType: models.EntityTypeAgent})
	require.NoError(t, err)

	require.NoError(t, sessions.Close(ctx, session.ID()))

	_, err = sessions.Get(session.ID())
	assert.True(t, services.IsNotFoundError(err))

	_, err = drafts.DraftByID(ctx, session.ID())
	assert.True(t, persistence.IsDraftNotFound(err))

	assert.True(t, services.IsNotFoundError(sessions.Close(ctx, session.ID())))
}

func TestSessions_HealthCheck(t *testing.T) {
	store := &mocks.MockPersistence{}
	store.On("HealthCheck", mock.Anything).Return(assert.AnError)

	sessions := services.NewSessions(services.SessionsConfig{API: catalogAPI(), Drafts: store})

	message, ok := sessions.HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Contains(t, message, "unhealthy")
}

func TestSessions_RefreshLibrary(t *testing.T) {
	child := testutil.CreateTestAction(testutil.WithID("child-1"), testutil.WithName("summarize"))
	added := testutil.CreateTestAction(testutil.WithID("child-2"), testutil.WithName("translate"))

	api := &mocks.MockAPI{}
	api.On("ListEntities", mock.Anything).Return([]models.Entity{*child}, nil).Once()
	api.On("ListEntities", mock.Anything).Return([]models.Entity{*child, *added}, nil).Once()
	api.On("ListEntities", mock.Anything).Return(nil, client.ErrTransport)
	api.On("ListTools", mock.Anything).Return([]models.Tool{{Name: "web_search"}}, nil)

	sessions, _ := newSessions(t, api)
	ctx := t.Context()

	session, err := sessions.Open(ctx, services.OpenRequest{EntityType: models.EntityTypeSkill})
	require.NoError(t, err)

	_, err = session.AddLibraryEntity("child-2", graph.Position{})
	require.Error(t, err, "child-2 is not in the first snapshot")

	_, err = sessions.RefreshLibrary(ctx, session.ID())
	require.NoError(t, err)

	_, err = session.AddLibraryEntity("child-2", graph.Position{})
	require.NoError(t, err)
	assert.Empty(t, session.View().Banners)

	_, err = sessions.RefreshLibrary(ctx, session.ID())
	require.NoError(t, err)

	view := session.View()
	require.Len(t, view.Banners, 1)
	assert.Equal(t, editor.CategoryTransport, view.Banners[0].Category)

	_, err = session.AddLibraryEntity("child-1", graph.Position{X: 10})
	assert.NoError(t, err, "the old snapshot stays after a failed refresh")

	_, err = sessions.RefreshLibrary(ctx, "missing")
	assert.True(t, services.IsNotFoundError(err))
}
