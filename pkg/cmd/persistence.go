package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/composer/pkg/library"
	"github.com/dukex/composer/pkg/persistence"
	"github.com/dukex/composer/pkg/persistence/file"
	"github.com/dukex/composer/pkg/persistence/postgresql"
	"github.com/dukex/composer/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql", "redis", "rediss"}

// Stores bundles the draft store with the optional catalog cache that
// shares its backend.
type Stores struct {
	Drafts  persistence.Persistence
	Catalog library.Cache
}

// NewPersistence opens the draft store named by draftsURL: a redis:// or
// postgres:// URL, or a file path (optionally file://).
func NewPersistence(ctx context.Context, logger *slog.Logger, draftsURL string) (*Stores, error) {
	switch parsePersistenceProvider(draftsURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, draftsURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres draft store: %w", err)
		}

		return &Stores{Drafts: store}, nil
	case "redis", "rediss":
		store, err := redis.New(draftsURL)
		if err != nil {
			return nil, err
		}

		if err := store.HealthCheck(ctx); err != nil {
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}

		return &Stores{
			Drafts:  store,
			Catalog: redis.NewCatalogCache(store.Client(), redis.DefaultCatalogTTL),
		}, nil
	default:
		return &Stores{Drafts: file.NewPersistence(strings.TrimPrefix(draftsURL, "file://"))}, nil
	}
}

func parsePersistenceProvider(draftsURL string) string {
	parts := strings.Split(draftsURL, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
