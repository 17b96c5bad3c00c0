package library

import (
	"context"
	"log/slog"
)

// Cache keeps fetched catalogs between editing sessions.
type Cache interface {
	GetCatalog(ctx context.Context, key string) (*Catalog, bool, error)
	SetCatalog(ctx context.Context, key string, catalog *Catalog) error
}

// LoadCached serves the snapshot from cache when present and falls back to
// the source otherwise. Cache failures never fail the load.
func LoadCached(ctx context.Context, source Source, cache Cache, key, editingID string) (*Resolver, error) {
	logger := slog.With("module", "library")

	if cache != nil {
		catalog, ok, err := cache.GetCatalog(ctx, key)
		if err != nil {
			logger.WarnContext(ctx, "Catalog cache read failed", "key", key, "error", err)
		}

		if ok {
			return NewResolver(catalog, editingID), nil
		}
	}

	catalog, err := Fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if err := cache.SetCatalog(ctx, key, catalog); err != nil {
			logger.WarnContext(ctx, "Catalog cache write failed", "key", key, "error", err)
		}
	}

	return NewResolver(catalog, editingID), nil
}
