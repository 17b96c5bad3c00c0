// Package library resolves graph references against a snapshot of the entity and tool catalog.
package library

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dukex/composer/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Source fetches the catalog. *client.Client satisfies it.
type Source interface {
	ListEntities(ctx context.Context) ([]models.Entity, error)
	ListTools(ctx context.Context) ([]models.Tool, error)
}

// Catalog is an immutable snapshot.
type Catalog struct {
	Entities  []models.EntitySummary `json:"entities"`
	Tools     []models.Tool          `json:"tools"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// Fetch loads entities and tools concurrently.
func Fetch(ctx context.Context, source Source) (*Catalog, error) {
	var (
		entities []models.Entity
		tools    []models.Tool
	)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error

		entities, err = source.ListEntities(ctx)
		if err != nil {
			return fmt.Errorf("failed to list entities: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		var err error

		tools, err = source.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tools: %w", err)
		}

		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	catalog := &Catalog{
		Entities:  make([]models.EntitySummary, 0, len(entities)),
		Tools:     tools,
		FetchedAt: time.Now().UTC(),
	}

	for i := range entities {
		catalog.Entities = append(catalog.Entities, entities[i].Summary())
	}

	return catalog, nil
}

// Resolver answers lookups from the current snapshot. The entity being
// edited is never offered or resolved, so it cannot be linked into its own plan.
type Resolver struct {
	editingID string
	snapshot  atomic.Pointer[index]
}

type index struct {
	catalog  *Catalog
	entities map[string]models.EntitySummary
	tools    map[string]models.Tool
	listed   []models.EntitySummary
}

// NewResolver builds a resolver over a catalog for the given editing session.
func NewResolver(catalog *Catalog, editingID string) *Resolver {
	r := &Resolver{editingID: editingID}
	r.Replace(catalog)

	return r
}

// Load fetches the catalog once and returns a resolver over it.
func Load(ctx context.Context, source Source, editingID string) (*Resolver, error) {
	catalog, err := Fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	return NewResolver(catalog, editingID), nil
}

// Replace swaps in a new snapshot atomically.
func (r *Resolver) Replace(catalog *Catalog) {
	if catalog == nil {
		catalog = &Catalog{}
	}

	idx := &index{
		catalog:  catalog,
		entities: make(map[string]models.EntitySummary, len(catalog.Entities)),
		tools:    make(map[string]models.Tool, len(catalog.Tools)),
		listed:   make([]models.EntitySummary, 0, len(catalog.Entities)),
	}

	for _, e := range catalog.Entities {
		if r.editingID != "" && e.ID == r.editingID {
			continue
		}

		idx.entities[e.ID] = e
		idx.listed = append(idx.listed, e)
	}

	for _, t := range catalog.Tools {
		idx.tools[t.Name] = t
	}

	slices.SortFunc(idx.listed, func(a, b models.EntitySummary) int {
		return cmp.Or(
			cmp.Compare(typeRank(a.Type), typeRank(b.Type)),
			cmp.Compare(a.Name, b.Name),
		)
	})

	r.snapshot.Store(idx)
}

// Refresh refetches and replaces the snapshot. On error the old snapshot stays.
func (r *Resolver) Refresh(ctx context.Context, source Source) error {
	catalog, err := Fetch(ctx, source)
	if err != nil {
		return err
	}

	r.Replace(catalog)

	return nil
}

func typeRank(t models.EntityType) int {
	if i := slices.Index(models.EntityTypes, t); i >= 0 {
		return i
	}

	return len(models.EntityTypes)
}

// EditingID is the entity excluded from the library.
func (r *Resolver) EditingID() string {
	return r.editingID
}

func (r *Resolver) ResolveEntity(id string) (models.EntitySummary, bool) {
	e, ok := r.snapshot.Load().entities[id]

	return e, ok
}

func (r *Resolver) ResolveTool(name string) (models.Tool, bool) {
	t, ok := r.snapshot.Load().tools[name]

	return t, ok
}

// Entities lists linkable entities grouped by type, then by name.
func (r *Resolver) Entities() []models.EntitySummary {
	return slices.Clone(r.snapshot.Load().listed)
}

func (r *Resolver) Tools() []models.Tool {
	return slices.Clone(r.snapshot.Load().catalog.Tools)
}

// Catalog returns the snapshot as fetched, including the edited entity.
func (r *Resolver) Catalog() *Catalog {
	return r.snapshot.Load().catalog
}

// SearchTools matches name or description case-insensitively.
func (r *Resolver) SearchTools(query string) []models.Tool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return r.Tools()
	}

	var found []models.Tool

	for _, t := range r.snapshot.Load().catalog.Tools {
		if strings.Contains(strings.ToLower(t.Name), query) || strings.Contains(strings.ToLower(t.Description), query) {
			found = append(found, t)
		}
	}

	return found
}

// SearchEntities matches name, display name or description case-insensitively.
func (r *Resolver) SearchEntities(query string) []models.EntitySummary {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return r.Entities()
	}

	var found []models.EntitySummary

	for _, e := range r.snapshot.Load().listed {
		if strings.Contains(strings.ToLower(e.Name), query) ||
			strings.Contains(strings.ToLower(e.DisplayName), query) ||
			strings.Contains(strings.ToLower(e.Description), query) {
			found = append(found, e)
		}
	}

	return found
}
