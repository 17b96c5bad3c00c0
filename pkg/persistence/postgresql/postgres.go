// Package postgresql provides PostgreSQL persistence for editor drafts.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/composer/pkg/persistence"
	"github.com/dukex/composer/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db        *sql.DB
	logger    *slog.Logger
	draftRepo *DraftRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to ping database: %w", err), database.Close())
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to run migrations: %w", err), database.Close())
	}

	return &Persistence{
		db:        database,
		logger:    logger,
		draftRepo: NewDraftRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Drafts(ctx context.Context) ([]*persistence.Draft, error) {
	return p.draftRepo.GetAll(ctx)
}

func (p *Persistence) SaveDraft(ctx context.Context, draft *persistence.Draft) error {
	return p.draftRepo.Save(ctx, draft)
}

func (p *Persistence) DraftByID(ctx context.Context, sessionID string) (*persistence.Draft, error) {
	return p.draftRepo.GetByID(ctx, sessionID)
}

func (p *Persistence) DeleteDraft(ctx context.Context, sessionID string) error {
	return p.draftRepo.Delete(ctx, sessionID)
}
