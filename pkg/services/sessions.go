package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/composer/pkg/convert"
	"github.com/dukex/composer/pkg/editor"
	"github.com/dukex/composer/pkg/eventbus"
	"github.com/dukex/composer/pkg/events"
	"github.com/dukex/composer/pkg/library"
	"github.com/dukex/composer/pkg/metrics"
	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/persistence"
	"github.com/google/uuid"
)

type SessionsConfig struct {
	API    API
	Drafts persistence.Persistence
	// Cache and CacheKey let reopened sessions reuse a catalog snapshot.
	Cache     library.Cache
	CacheKey  string
	Publisher eventbus.EventPublisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Sessions owns the editing sessions of the console backend. Every edit is
// autosaved as a draft so sessions survive a restart.
type Sessions struct {
	api       API
	drafts    persistence.Persistence
	cache     library.Cache
	cacheKey  string
	publisher eventbus.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu        sync.RWMutex
	sessions  map[string]*editor.Session
	libraries map[string]*library.Resolver
}

func NewSessions(cfg SessionsConfig) *Sessions {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sessions{
		api:       cfg.API,
		drafts:    cfg.Drafts,
		cache:     cfg.Cache,
		cacheKey:  cfg.CacheKey,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    logger.With("module", "sessions_service"),
		sessions:  make(map[string]*editor.Session),
		libraries: make(map[string]*library.Resolver),
	}
}

// HealthCheck checks the health of the draft store.
func (s *Sessions) HealthCheck(ctx context.Context) (string, bool) {
	if s.drafts == nil {
		return "Draft store not initialized", false
	}

	if err := s.drafts.HealthCheck(ctx); err != nil {
		return "Draft store is unhealthy: " + err.Error(), false
	}

	return "Draft store is healthy", true
}

type OpenRequest struct {
	// EntityID opens an existing entity. When empty a new entity of
	// EntityType is created.
	EntityID   string            `json:"entity_id,omitempty"`
	EntityType models.EntityType `json:"entity_type,omitempty"`
}

// Open starts an editing session and loads the library once for it.
func (s *Sessions) Open(ctx context.Context, req OpenRequest) (*editor.Session, error) {
	var target *models.Entity

	if req.EntityID != "" {
		fetched, err := s.api.GetEntity(ctx, req.EntityID)
		if err != nil {
			return nil, fromAPI("Open", err, ErrEntityNotFound)
		}

		target = fetched
	} else {
		if !slices.Contains(models.EntityTypes, req.EntityType) {
			return nil, NewValidationError("Open", "invalid_entity_type",
				fmt.Sprintf("entity_type must be one of %v", models.EntityTypes), ErrInvalidEntityType)
		}

		target = editor.Blank(req.EntityType)
	}

	session, err := s.newSession(ctx, uuid.NewString(), target, nil, nil)
	if err != nil {
		return nil, err
	}

	s.add(session)
	s.autosave(ctx, session)

	s.logger.InfoContext(ctx, "Session opened", "session_id", session.ID(), "entity_id", req.EntityID)

	return session, nil
}

func (s *Sessions) newSession(ctx context.Context, id string, draft, original *models.Entity, restored *persistence.Draft) (*editor.Session, error) {
	resolver, err := library.LoadCached(ctx, s.api, s.cache, s.cacheKey, draft.ID)
	if err != nil {
		return nil, fromAPI("LoadLibrary", err, nil)
	}

	cfg := editor.Config{
		ID:       id,
		Entity:   draft,
		Original: original,
		Store:    s.api,
		Resolver: resolver,
		Children: s.api,
		Logger:   s.logger,
	}

	if restored != nil {
		cfg.Graph = &restored.Graph
	}

	session, err := editor.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	s.mu.Lock()
	s.libraries[id] = resolver
	s.mu.Unlock()

	return session, nil
}

func (s *Sessions) add(session *editor.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	count := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetOpenSessions(count)
}

// Restore reopens every autosaved draft. Drafts that cannot be reopened are
// logged and skipped.
func (s *Sessions) Restore(ctx context.Context) (int, error) {
	if s.drafts == nil {
		return 0, nil
	}

	drafts, err := s.drafts.Drafts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list drafts: %w", err)
	}

	restored := 0

	for _, draft := range drafts {
		var original *models.Entity

		if draft.EntityID != "" {
			original, err = s.api.GetEntity(ctx, draft.EntityID)
			if err != nil {
				s.logger.WarnContext(ctx, "Restoring draft without its saved entity", "session_id", draft.SessionID, "error", err)

				original = nil
			}
		}

		session, err := s.newSession(ctx, draft.SessionID, draft.Entity, original, draft)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to restore draft", "session_id", draft.SessionID, "error", err)

			continue
		}

		s.add(session)

		restored++
	}

	s.logger.InfoContext(ctx, "Drafts restored", "count", restored, "total", len(drafts))

	return restored, nil
}

func (s *Sessions) Get(id string) (*editor.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, &ServiceError{Op: "Get", Code: "session_not_found", Message: "session " + id + " not found", Err: ErrSessionNotFound}
	}

	return session, nil
}

// List returns a view of every open session, most recently edited first.
func (s *Sessions) List() []editor.View {
	s.mu.RLock()
	views := make([]editor.View, 0, len(s.sessions))

	for _, session := range s.sessions {
		views = append(views, session.View())
	}
	s.mu.RUnlock()

	slices.SortFunc(views, func(a, b editor.View) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	return views
}

// Edit applies fn to the session and autosaves the draft when fn succeeds.
func (s *Sessions) Edit(ctx context.Context, id string, fn func(*editor.Session) error) (*editor.Session, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if err := fn(session); err != nil {
		return session, err
	}

	s.autosave(ctx, session)

	return session, nil
}

// Validate runs the local validation and records error codes in metrics.
func (s *Sessions) Validate(id string) (editor.Report, error) {
	session, err := s.Get(id)
	if err != nil {
		return editor.Report{}, err
	}

	report := session.Validate()
	s.recordReport(report)

	return report, nil
}

func (s *Sessions) recordReport(report editor.Report) {
	for _, fe := range report.FieldErrors {
		s.metrics.ValidationError("field", fe.Code)
	}

	for _, ce := range report.ConversionErrors {
		s.metrics.ValidationError("conversion", ce.Code)
	}
}

// Save writes the draft through the execution API.
func (s *Sessions) Save(ctx context.Context, id string) (*models.Entity, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	wasNew := session.View().Entity.ID == ""
	started := time.Now()

	saved, err := session.Save(ctx)

	switch {
	case errors.Is(err, editor.ErrSaveInProgress):
		return nil, &ServiceError{Op: "Save", Code: "save_in_progress", Err: err}
	case errors.Is(err, editor.ErrValidation):
		view := session.View()
		report := editor.Report{FieldErrors: view.FieldErrors, ConversionErrors: view.ConversionErrors}
		if view.Entity.Type.IsComposite() {
			report.Shape = convert.Classify(view.Graph)
		}

		s.recordReport(report)
		s.metrics.ObserveSave(string(editor.CategoryValidation), time.Since(started))

		return nil, &ServiceError{
			Op:      "Save",
			Code:    "validation_failed",
			Message: "the draft has validation errors",
			Err:     err,
			Details: report,
		}
	case err != nil:
		s.metrics.ObserveSave(string(editor.Classify(err)), time.Since(started))
		s.autosave(ctx, session)

		return nil, fromAPI("Save", err, ErrEntityNotFound)
	}

	s.metrics.ObserveSave("ok", time.Since(started))
	s.autosave(ctx, session)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, saved.ID, events.NewEntitySaved(id, saved, wasNew)); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish entity saved event", "session_id", id, "error", err)
		}
	}

	return saved, nil
}

// Discard reverts the session to the last saved entity.
func (s *Sessions) Discard(ctx context.Context, id string) (*editor.Session, error) {
	return s.Edit(ctx, id, func(session *editor.Session) error {
		if err := session.Discard(); err != nil {
			if errors.Is(err, convert.ErrUnsupportedPlan) {
				return NewValidationError("Discard", "unsupported_plan", "the saved plan cannot be drawn", err)
			}

			return err
		}

		return nil
	})
}

// RefreshLibrary refetches the catalog behind the session's library. A failed
// fetch keeps the old snapshot and raises a banner on the session.
func (s *Sessions) RefreshLibrary(ctx context.Context, id string) (*editor.Session, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	resolver := s.libraries[id]
	s.mu.RUnlock()

	if resolver == nil {
		return nil, &ServiceError{Op: "RefreshLibrary", Code: "session_not_found", Err: ErrSessionNotFound}
	}

	if err := resolver.Refresh(ctx, s.api); err != nil {
		banner := session.RaiseBanner(err)
		s.logger.WarnContext(ctx, "Library refresh failed", "session_id", id, "category", banner.Category, "error", err)

		return session, nil
	}

	if s.cache != nil {
		if err := s.cache.SetCatalog(ctx, s.cacheKey, resolver.Catalog()); err != nil {
			s.logger.WarnContext(ctx, "Catalog cache write failed", "key", s.cacheKey, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "Library refreshed", "session_id", id, "editing_id", resolver.EditingID(),
		"entities", len(resolver.Entities()), "tools", len(resolver.Tools()))

	return session, nil
}

// Close ends the session and drops its draft.
func (s *Sessions) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	delete(s.libraries, id)
	count := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return &ServiceError{Op: "Close", Code: "session_not_found", Err: ErrSessionNotFound}
	}

	s.metrics.SetOpenSessions(count)

	if s.drafts != nil {
		err := s.drafts.DeleteDraft(ctx, id)
		if err != nil && !persistence.IsDraftNotFound(err) {
			return fmt.Errorf("failed to delete draft: %w", err)
		}
	}

	return nil
}

// autosave keeps the draft store in step with the session. A clean session
// has nothing to recover, so its draft is removed.
func (s *Sessions) autosave(ctx context.Context, session *editor.Session) {
	if s.drafts == nil {
		return
	}

	view := session.View()

	if !view.Dirty && view.Entity.ID != "" {
		err := s.drafts.DeleteDraft(ctx, view.ID)
		if err != nil && !persistence.IsDraftNotFound(err) {
			s.logger.WarnContext(ctx, "Failed to drop clean draft", "session_id", view.ID, "error", err)
		}

		return
	}

	draft := &persistence.Draft{
		SessionID: view.ID,
		EntityID:  view.Entity.ID,
		Entity:    view.Entity,
		Graph:     view.Graph,
		UpdatedAt: view.UpdatedAt,
	}

	if err := s.drafts.SaveDraft(ctx, draft); err != nil {
		s.logger.WarnContext(ctx, "Failed to autosave draft", "session_id", view.ID, "error", err)
	}
}
