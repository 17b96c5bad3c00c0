// Package persistence stores unsaved editor drafts so a session survives a
// restart of the console backend. Entities themselves live in the external API.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/composer/pkg/graph"
	"github.com/dukex/composer/pkg/models"
)

// Draft is the autosaved state of one editing session.
type Draft struct {
	SessionID string         `json:"session_id"`
	EntityID  string         `json:"entity_id,omitempty"`
	Entity    *models.Entity `json:"entity"`
	Graph     graph.Graph    `json:"graph"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Validate checks the fields every store relies on.
func (d *Draft) Validate() error {
	if d == nil || d.SessionID == "" {
		return NewDraftError("Validate", "", ErrInvalidDraft)
	}

	if d.Entity == nil {
		return &DraftError{Op: "Validate", SessionID: d.SessionID, Err: ErrInvalidDraft, Message: "entity is required"}
	}

	return nil
}

type Persistence interface {
	Drafts(ctx context.Context) ([]*Draft, error)
	SaveDraft(ctx context.Context, draft *Draft) error
	DraftByID(ctx context.Context, sessionID string) (*Draft, error)
	DeleteDraft(ctx context.Context, sessionID string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
