// Package editor binds an entity draft, its graph surface and the library
// resolver into one editing session.
package editor

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/composer/pkg/convert"
	"github.com/dukex/composer/pkg/entity"
	"github.com/dukex/composer/pkg/graph"
	"github.com/dukex/composer/pkg/models"
	"github.com/dukex/composer/pkg/patch"
)

// Store persists entities. *client.Client satisfies it.
type Store interface {
	CreateEntity(ctx context.Context, e *models.Entity) (*models.Entity, error)
	UpdateEntity(ctx context.Context, id string, e *models.Entity) (*models.Entity, error)
}

// ChildSource fetches child entities for the hierarchy check on save.
type ChildSource interface {
	GetEntity(ctx context.Context, id string) (*models.Entity, error)
}

type Config struct {
	ID     string
	Entity *models.Entity
	// Original is the last saved version when Entity is a restored draft.
	Original *models.Entity
	Store    Store
	Resolver convert.Resolver
	// Children enables the transitive cycle check on save when set.
	Children ChildSource
	// Graph restores an autosaved surface instead of drawing one from the plan.
	Graph          *graph.Graph
	Layout         convert.Layout
	SurfaceOptions []graph.Option
	Logger         *slog.Logger
}

// Session is one operator editing one entity. Methods are safe for
// concurrent use; concurrent edits are last-write-wins.
type Session struct {
	id       string
	store    Store
	resolver convert.Resolver
	children ChildSource
	layout   convert.Layout
	logger   *slog.Logger

	saving atomic.Bool

	mu               sync.Mutex
	original         *models.Entity
	draft            *models.Entity
	surface          *graph.Surface
	surfaceOptions   []graph.Option
	banners          []Banner
	fieldErrors      entity.FieldErrors
	conversionErrors convert.ConversionErrors
	revision         uint64
	savedRevision    uint64
	updatedAt        time.Time
}

// NewSession opens a session. Composite entities are drawn as a chain graph;
// plans that cannot be drawn faithfully fail with convert.ErrUnsupportedPlan.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Entity == nil {
		return nil, fmt.Errorf("%w: entity is required", ErrValidation)
	}

	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrValidation)
	}

	layout := cfg.Layout
	if layout.Spacing == 0 {
		layout = convert.DefaultLayout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:             cfg.ID,
		store:          cfg.Store,
		resolver:       cfg.Resolver,
		children:       cfg.Children,
		layout:         layout,
		logger:         logger.With("module", "editor", "session_id", cfg.ID),
		original:       clone(cmp.Or(cfg.Original, cfg.Entity)),
		draft:          clone(cfg.Entity),
		surfaceOptions: cfg.SurfaceOptions,
		updatedAt:      time.Now().UTC(),
	}

	surface, err := s.drawSurface(s.draft, cfg.Graph)
	if err != nil {
		return nil, err
	}

	s.surface = surface

	if cfg.Graph != nil || cfg.Original != nil {
		s.revision = 1
	}

	return s, nil
}

// Blank returns a new DRAFT entity of the given type.
func Blank(entityType models.EntityType) *models.Entity {
	e := &models.Entity{
		Type:    entityType,
		Version: "1.0.0",
		Status:  models.EntityStatusDraft,
	}

	if entityType.IsComposite() {
		e.SetSteps([]models.Step{})
	}

	return e
}

func (s *Session) drawSurface(e *models.Entity, restored *graph.Graph) (*graph.Surface, error) {
	surface := graph.NewSurface(s.surfaceOptions...)

	if !e.Type.IsComposite() {
		return surface, nil
	}

	if restored != nil {
		surface.Load(*restored)

		return surface, nil
	}

	g, err := convert.ToGraph(e, convert.GraphOptions{Layout: s.layout, Resolver: s.resolver})
	if err != nil {
		return nil, fmt.Errorf("failed to draw plan of %s: %w", e.Name, err)
	}

	surface.Load(g)

	return surface, nil
}

func (s *Session) ID() string {
	return s.id
}

// touch records a mutation. Callers hold mu.
func (s *Session) touch() {
	s.revision++
	s.updatedAt = time.Now().UTC()
}

func (s *Session) requireComposite() error {
	if !s.draft.Type.IsComposite() {
		return ErrNotComposite
	}

	return nil
}

func (s *Session) AddNode(nodeType string, pos graph.Position) (graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireComposite(); err != nil {
		return graph.Node{}, err
	}

	node := s.surface.AddNode(nodeType, pos)
	s.touch()

	return *node, nil
}

// AddLibraryEntity drops a library entity onto the surface.
func (s *Session) AddLibraryEntity(entityID string, pos graph.Position) (graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireComposite(); err != nil {
		return graph.Node{}, err
	}

	if entityID == s.draft.ID && entityID != "" {
		return graph.Node{}, fmt.Errorf("%w: an entity cannot invoke itself", ErrValidation)
	}

	if s.resolver == nil {
		return graph.Node{}, fmt.Errorf("%w: library is not loaded", ErrValidation)
	}

	summary, ok := s.resolver.ResolveEntity(entityID)
	if !ok {
		return graph.Node{}, fmt.Errorf("%w: entity %s is not in the library", ErrValidation, entityID)
	}

	node := s.surface.AddLibraryEntity(summary, pos)
	s.touch()

	return *node, nil
}

// AddLibraryTool drops a library tool onto the surface.
func (s *Session) AddLibraryTool(name string, pos graph.Position) (graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireComposite(); err != nil {
		return graph.Node{}, err
	}

	if s.resolver == nil {
		return graph.Node{}, fmt.Errorf("%w: library is not loaded", ErrValidation)
	}

	tool, ok := s.resolver.ResolveTool(name)
	if !ok {
		return graph.Node{}, fmt.Errorf("%w: tool %s is not in the library", ErrValidation, name)
	}

	node := s.surface.AddLibraryTool(tool, pos)
	s.touch()

	return *node, nil
}

func (s *Session) Connect(source, target string) (graph.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge, err := s.surface.Connect(source, target)
	if err != nil {
		return graph.Edge{}, err
	}

	s.touch()

	return *edge, nil
}

func (s *Session) RemoveNode(id string) error {
	return s.mutate(func() error { return s.surface.RemoveNode(id) })
}

func (s *Session) RemoveEdge(id string) error {
	return s.mutate(func() error { return s.surface.RemoveEdge(id) })
}

func (s *Session) UpdateNodeData(id string, values map[string]any) error {
	return s.mutate(func() error { return s.surface.UpdateNodeData(id, values) })
}

func (s *Session) MoveNode(id string, pos graph.Position) error {
	return s.mutate(func() error { return s.surface.MoveNode(id, pos) })
}

func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}

	s.touch()

	return nil
}

// Select changes the ephemeral selection. It does not make the draft dirty.
func (s *Session) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		s.surface.ClearSelection()

		return nil
	}

	return s.surface.Select(id)
}

// readOnlyFields cannot be patched. Status moves through SetStatus and the
// plan of a composite comes from the graph.
var readOnlyFields = []string{"id", "entity_type", "status", "company_id", "created_at", "updated_at", "hierarchy"}

// UpdateEntity shallow-merges top-level fields into the draft. A nil value
// clears the field.
func (s *Session) UpdateEntity(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range values {
		if slices.Contains(readOnlyFields, key) || (key == "planning" && s.draft.Type.IsComposite()) {
			return fmt.Errorf("%w: %s", ErrReadOnlyField, key)
		}
	}

	next := clone(s.draft)

	if err := patch.Apply(next, values, "json"); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	next.Tags = entity.NormalizeTags(next.Tags)
	s.draft = next
	s.touch()

	return nil
}

// SetPrompt sets the single prompt step of an ACTION.
func (s *Session) SetPrompt(template string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draft.Type != models.EntityTypeAction {
		return fmt.Errorf("%w: only actions carry a prompt", ErrReadOnlyField)
	}

	stepID := "prompt"
	if steps := s.draft.Steps(); len(steps) > 0 && steps[0].StepID != "" {
		stepID = steps[0].StepID
	}

	s.draft.SetSteps([]models.Step{{
		StepID:   stepID,
		Order:    1,
		Name:     s.draft.Label(),
		Type:     models.StepTypeAction,
		Target:   models.StepTarget{PromptTemplate: template},
		Required: true,
	}})
	s.touch()

	return nil
}

// SetStatus applies a lifecycle transition to the draft.
func (s *Session) SetStatus(to models.EntityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := entity.Transition(s.draft, to); err != nil {
		return err
	}

	s.touch()

	return nil
}

// ReorderSteps moves a step by delta positions and redraws the chain.
func (s *Session) ReorderSteps(stepID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireComposite(); err != nil {
		return err
	}

	ordered, err := convert.ChainOrder(s.surface.Snapshot())
	if err != nil {
		return err
	}

	from := slices.IndexFunc(ordered, func(n graph.Node) bool { return n.ID == stepID })
	if from < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}

	to := min(max(from+delta, 0), len(ordered)-1)
	if to == from {
		return nil
	}

	node := ordered[from]
	ordered = slices.Delete(ordered, from, from+1)
	ordered = slices.Insert(ordered, to, node)

	for _, e := range s.surface.Edges() {
		if err := s.surface.RemoveEdge(e.ID); err != nil {
			return err
		}
	}

	previous := ""
	if _, ok := s.surface.Node(graph.RootID); ok {
		previous = graph.RootID
	}

	for i, n := range ordered {
		if previous != "" {
			if _, err := s.surface.Connect(previous, n.ID); err != nil {
				return err
			}
		}

		pos := graph.Position{X: s.layout.Origin.X, Y: s.layout.Origin.Y + float64(i+1)*s.layout.Spacing}
		if err := s.surface.MoveNode(n.ID, pos); err != nil {
			return err
		}

		previous = n.ID
	}

	s.touch()

	return nil
}

// Report is the outcome of validating the draft.
type Report struct {
	FieldErrors      entity.FieldErrors       `json:"field_errors"`
	ConversionErrors convert.ConversionErrors `json:"conversion_errors"`
	Shape            convert.Shape            `json:"shape,omitempty"`

	candidate *models.Entity
}

func (r Report) Valid() bool {
	return len(r.FieldErrors) == 0 && len(r.ConversionErrors) == 0
}

// Err joins both error lists, nil when valid.
func (r Report) Err() error {
	if r.Valid() {
		return nil
	}

	var errs []error
	if len(r.ConversionErrors) > 0 {
		errs = append(errs, r.ConversionErrors)
	}

	if len(r.FieldErrors) > 0 {
		errs = append(errs, r.FieldErrors)
	}

	return fmt.Errorf("%w: %w", ErrValidation, errors.Join(errs...))
}

// Validate converts the graph and validates the resulting entity without any
// network call. Errors are kept on the session for inline display.
func (s *Session) Validate() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.validateLocked()
}

func (s *Session) validateLocked() Report {
	candidate := clone(s.draft)
	report := Report{}

	if candidate.Type.IsComposite() {
		snapshot := s.surface.Snapshot()
		report.Shape = convert.Classify(snapshot)

		plan, err := convert.ToPlan(snapshot, convert.Options{EntityID: candidate.ID, Resolver: s.resolver})
		if err != nil {
			var errs convert.ConversionErrors
			if errors.As(err, &errs) {
				report.ConversionErrors = errs
			} else {
				report.ConversionErrors = convert.ConversionErrors{{Code: convert.CodeUnsupportedShape, Message: err.Error()}}
			}
		} else {
			convert.ApplyPlan(candidate, plan)
		}
	}

	report.FieldErrors = entity.Validate(candidate)
	report.candidate = candidate

	s.fieldErrors = report.FieldErrors
	s.conversionErrors = report.ConversionErrors

	return report
}

// checkHierarchy walks the children of a composite candidate through the
// child source. Lookups that fail are treated as unknown ids.
func (s *Session) checkHierarchy(ctx context.Context, candidate *models.Entity) entity.FieldErrors {
	if s.children == nil || !candidate.Type.IsComposite() {
		return nil
	}

	fetched := make(map[string]*models.Entity)

	return entity.ValidateHierarchy(candidate, func(id string) (*models.Entity, bool) {
		if e, ok := fetched[id]; ok {
			return e, e != nil
		}

		e, err := s.children.GetEntity(ctx, id)
		if err != nil {
			s.logger.DebugContext(ctx, "Skipping child in hierarchy check", "child_id", id, "error", err)

			e = nil
		}

		fetched[id] = e

		return e, e != nil
	})
}

// Save validates and writes the draft. Only one save runs at a time; the
// session stays editable while it is in flight. On failure the draft is kept
// and a banner is raised, except for validation errors which stay inline.
func (s *Session) Save(ctx context.Context) (*models.Entity, error) {
	if !s.saving.CompareAndSwap(false, true) {
		return nil, ErrSaveInProgress
	}
	defer s.saving.Store(false)

	s.mu.Lock()
	report := s.validateLocked()
	revision := s.revision
	s.mu.Unlock()

	if !report.Valid() {
		return nil, report.Err()
	}

	if errs := s.checkHierarchy(ctx, report.candidate); len(errs) > 0 {
		s.mu.Lock()
		s.fieldErrors = errs
		s.mu.Unlock()

		report.FieldErrors = errs

		return nil, report.Err()
	}

	candidate := report.candidate

	var (
		saved *models.Entity
		err   error
	)

	if candidate.ID == "" {
		saved, err = s.store.CreateEntity(ctx, candidate)
	} else {
		saved, err = s.store.UpdateEntity(ctx, candidate.ID, candidate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		banner := newBanner(err)
		s.banners = append(s.banners, banner)
		s.logger.WarnContext(ctx, "Save failed", "entity_id", candidate.ID, "category", banner.Category, "error", err)

		return nil, fmt.Errorf("failed to save entity: %w", err)
	}

	if saved == nil {
		saved = candidate
	}

	s.original = clone(saved)
	s.banners = slices.DeleteFunc(s.banners, func(b Banner) bool {
		return b.Category == CategoryConflict || b.Category == CategoryTransport
	})

	if s.revision == revision {
		s.draft = clone(saved)
		s.savedRevision = revision
	} else {
		s.draft.ID = saved.ID
		s.draft.CreatedAt = saved.CreatedAt
		s.draft.UpdatedAt = saved.UpdatedAt
	}

	s.logger.InfoContext(ctx, "Entity saved", "entity_id", saved.ID, "steps", len(saved.Steps()))

	return clone(saved), nil
}

// Saving reports whether a save is in flight.
func (s *Session) Saving() bool {
	return s.saving.Load()
}

// Discard drops every unsaved change and returns to the last saved entity.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	surface, err := s.drawSurface(s.original, nil)
	if err != nil {
		return err
	}

	s.draft = clone(s.original)
	s.surface = surface
	s.banners = nil
	s.fieldErrors = nil
	s.conversionErrors = nil
	s.touch()
	s.savedRevision = s.revision

	return nil
}

// RaiseBanner records an error raised outside Save, e.g. a failed library refresh.
func (s *Session) RaiseBanner(err error) Banner {
	s.mu.Lock()
	defer s.mu.Unlock()

	banner := newBanner(err)
	s.banners = append(s.banners, banner)

	return banner
}

func (s *Session) DismissBanner(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.banners, func(b Banner) bool { return b.ID == id })
	if i < 0 {
		return ErrBannerNotFound
	}

	if !s.banners[i].Dismissible {
		return fmt.Errorf("%w: banner %s cannot be dismissed", ErrReadOnlyField, id)
	}

	s.banners = slices.Delete(s.banners, i, i+1)

	return nil
}

// View is a read-only snapshot of the session for display.
type View struct {
	ID               string                   `json:"id"`
	Entity           *models.Entity           `json:"entity"`
	Graph            graph.Graph              `json:"graph"`
	Selected         string                   `json:"selected,omitempty"`
	Banners          []Banner                 `json:"banners"`
	FieldErrors      entity.FieldErrors       `json:"field_errors,omitempty"`
	ConversionErrors convert.ConversionErrors `json:"conversion_errors,omitempty"`
	NextStatuses     []models.EntityStatus    `json:"next_statuses"`
	Saving           bool                     `json:"saving"`
	Dirty            bool                     `json:"dirty"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	return View{
		ID:               s.id,
		Entity:           clone(s.draft),
		Graph:            s.surface.Snapshot(),
		Selected:         s.surface.Selected(),
		Banners:          slices.Clone(s.banners),
		FieldErrors:      slices.Clone(s.fieldErrors),
		ConversionErrors: slices.Clone(s.conversionErrors),
		NextStatuses:     entity.NextStatuses(s.draft.Status),
		Saving:           s.saving.Load(),
		Dirty:            s.revision != s.savedRevision,
		UpdatedAt:        s.updatedAt,
	}
}

// Dirty reports unsaved changes.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revision != s.savedRevision
}

func clone(e *models.Entity) *models.Entity {
	if e == nil {
		return nil
	}

	data, err := json.Marshal(e)
	if err != nil {
		panic(fmt.Sprintf("editor: entity is not serializable: %v", err))
	}

	var out models.Entity
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("editor: entity is not deserializable: %v", err))
	}

	return &out
}
