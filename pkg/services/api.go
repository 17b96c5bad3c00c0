package services

import (
	"context"

	"github.com/dukex/composer/pkg/client"
	"github.com/dukex/composer/pkg/models"
)

// API is the slice of the execution API the services depend on.
// *client.Client satisfies it.
type API interface {
	ListEntities(ctx context.Context) ([]models.Entity, error)
	GetEntity(ctx context.Context, id string) (*models.Entity, error)
	CreateEntity(ctx context.Context, e *models.Entity) (*models.Entity, error)
	UpdateEntity(ctx context.Context, id string, e *models.Entity) (*models.Entity, error)
	ListTools(ctx context.Context) ([]models.Tool, error)

	TriggerExecution(ctx context.Context, req client.TriggerRequest) (string, error)
	GetRun(ctx context.Context, id string) (*models.ExecutionRun, error)
	ListRuns(ctx context.Context, limit int) ([]models.ExecutionRun, error)

	ListPendingCheckpoints(ctx context.Context) ([]models.Checkpoint, error)
	RespondCheckpoint(ctx context.Context, id string, resp models.CheckpointResponse) (*models.Checkpoint, error)
}

var _ API = (*client.Client)(nil)
