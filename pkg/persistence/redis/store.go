// Package redis provides Redis-backed draft persistence and a catalog cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/composer/pkg/persistence"
	backend "github.com/redis/go-redis/v9"
)

const (
	defaultDraftPrefix = "composer:draft:"
	noExpiryScore      = 4102444800 // 2100-01-01
)

// Store implements persistence.Persistence using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Store)

// WithTTL sets the expiration for drafts.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for drafts.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New connects to the Redis server at url, e.g. redis://localhost:6379/0.
func New(url string, opts ...Option) (*Store, error) {
	options, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewFromClient(backend.NewClient(options), opts...), nil
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultDraftPrefix,
		logger: slog.With("module", "redis_store"),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client exposes the connection so the catalog cache can share it.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// SaveDraft writes the draft and records it in the expiry index.
func (s *Store) SaveDraft(ctx context.Context, draft *persistence.Draft) error {
	if err := draft.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = noExpiryScore
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(draft.SessionID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: draft.SessionID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save draft to redis: %w", err)
	}

	return nil
}

func (s *Store) DraftByID(ctx context.Context, sessionID string) (*persistence.Draft, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, persistence.NewDraftError("DraftByID", sessionID, persistence.ErrDraftNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get draft from redis: %w", err)
	}

	var draft persistence.Draft
	if err := json.Unmarshal(val, &draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}

	return &draft, nil
}

func (s *Store) DeleteDraft(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	deleted := pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete draft from redis: %w", err)
	}

	if deleted.Val() == 0 {
		return persistence.NewDraftError("DeleteDraft", sessionID, persistence.ErrDraftNotFound)
	}

	return nil
}

// Drafts prunes expired index entries and returns the live drafts, most
// recently updated first.
func (s *Store) Drafts(ctx context.Context) ([]*persistence.Draft, error) {
	now := float64(time.Now().Unix())

	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired drafts: %w", err)
	}

	sessionIDs, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}

	drafts := make([]*persistence.Draft, 0, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return drafts, nil
	}

	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = s.key(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load drafts: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// expired between the index read and the fetch
			continue
		}

		var draft persistence.Draft
		if err := json.Unmarshal([]byte(raw), &draft); err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable draft", "session_id", sessionIDs[i], "error", err)

			continue
		}

		drafts = append(drafts, &draft)
	}

	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].UpdatedAt.After(drafts[j].UpdatedAt)
	})

	return drafts, nil
}

// HealthCheck pings the server.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the redis client.
func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}
