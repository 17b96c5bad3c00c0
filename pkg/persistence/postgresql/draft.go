package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/composer/pkg/persistence"
)

// DraftRepository handles draft-related database operations.
type DraftRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDraftRepository creates a new draft repository.
func NewDraftRepository(db *sql.DB, logger *slog.Logger) *DraftRepository {
	return &DraftRepository{db: db, logger: logger}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(row scanner) (*persistence.Draft, error) {
	var (
		draft     persistence.Draft
		entityID  sql.NullString
		entityRaw []byte
		graphRaw  []byte
	)

	err := row.Scan(&draft.SessionID, &entityID, &entityRaw, &graphRaw, &draft.UpdatedAt)
	if err != nil {
		return nil, err
	}

	draft.EntityID = entityID.String
	draft.UpdatedAt = draft.UpdatedAt.UTC()

	if err := json.Unmarshal(entityRaw, &draft.Entity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity of draft %s: %w", draft.SessionID, err)
	}

	if err := json.Unmarshal(graphRaw, &draft.Graph); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph of draft %s: %w", draft.SessionID, err)
	}

	return &draft, nil
}

const selectDrafts = `
	SELECT
		session_id
	  , entity_id
	  , entity
	  , graph
	  , updated_at
	FROM editor_drafts
`

// GetAll returns all drafts, most recently updated first.
func (r *DraftRepository) GetAll(ctx context.Context) ([]*persistence.Draft, error) {
	rows, err := r.db.QueryContext(ctx, selectDrafts+" ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	drafts := make([]*persistence.Draft, 0)

	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}

		drafts = append(drafts, draft)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drafts: %w", err)
	}

	return drafts, nil
}

// GetByID returns persistence.ErrDraftNotFound when the session has no draft.
func (r *DraftRepository) GetByID(ctx context.Context, sessionID string) (*persistence.Draft, error) {
	draft, err := scanDraft(r.db.QueryRowContext(ctx, selectDrafts+" WHERE session_id = $1", sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewDraftError("DraftByID", sessionID, persistence.ErrDraftNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get draft %s: %w", sessionID, err)
	}

	return draft, nil
}

// Save upserts the draft.
func (r *DraftRepository) Save(ctx context.Context, draft *persistence.Draft) error {
	if err := draft.Validate(); err != nil {
		return err
	}

	entityJSON, err := json.Marshal(draft.Entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	graphJSON, err := json.Marshal(draft.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	query := `
		INSERT INTO editor_drafts (session_id, entity_id, entity, graph, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			entity_id = EXCLUDED.entity_id
		  , entity = EXCLUDED.entity
		  , graph = EXCLUDED.graph
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query, draft.SessionID, draft.EntityID, entityJSON, graphJSON, draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save draft %s: %w", draft.SessionID, err)
	}

	return nil
}

// Delete removes the draft.
func (r *DraftRepository) Delete(ctx context.Context, sessionID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM editor_drafts WHERE session_id = $1", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", sessionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewDraftError("DeleteDraft", sessionID, persistence.ErrDraftNotFound)
	}

	return nil
}
