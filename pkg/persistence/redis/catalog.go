package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/composer/pkg/library"
	backend "github.com/redis/go-redis/v9"
)

// DefaultCatalogTTL bounds how stale a cached library snapshot may get.
const DefaultCatalogTTL = 5 * time.Minute

// CatalogCache implements library.Cache.
type CatalogCache struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

func NewCatalogCache(client *backend.Client, ttl time.Duration) *CatalogCache {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}

	return &CatalogCache{client: client, prefix: "composer:catalog:", ttl: ttl}
}

func (c *CatalogCache) GetCatalog(ctx context.Context, key string) (*library.Catalog, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to get catalog from redis: %w", err)
	}

	var catalog library.Catalog
	if err := json.Unmarshal(val, &catalog); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}

	return &catalog, true, nil
}

func (c *CatalogCache) SetCatalog(ctx context.Context, key string, catalog *library.Catalog) error {
	data, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache catalog: %w", err)
	}

	return nil
}
