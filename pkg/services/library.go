package services

import (
	"context"

	"github.com/dukex/composer/pkg/library"
	"github.com/dukex/composer/pkg/models"
)

// Library answers palette queries outside of an editing session.
type Library struct {
	api      API
	cache    library.Cache
	cacheKey string
}

func NewLibrary(api API, cache library.Cache, cacheKey string) *Library {
	return &Library{api: api, cache: cache, cacheKey: cacheKey}
}

// Entities lists the catalog entities matching query, leaving out excludeID.
func (l *Library) Entities(ctx context.Context, query, excludeID string) ([]models.EntitySummary, error) {
	resolver, err := library.LoadCached(ctx, l.api, l.cache, l.cacheKey, excludeID)
	if err != nil {
		return nil, fromAPI("LibraryEntities", err, nil)
	}

	return resolver.SearchEntities(query), nil
}

func (l *Library) Tools(ctx context.Context, query string) ([]models.Tool, error) {
	resolver, err := library.LoadCached(ctx, l.api, l.cache, l.cacheKey, "")
	if err != nil {
		return nil, fromAPI("LibraryTools", err, nil)
	}

	return resolver.SearchTools(query), nil
}
