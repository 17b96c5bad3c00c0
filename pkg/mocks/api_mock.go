package mocks

import (
	"context"

	"github.com/dukex/composer/pkg/client"
	"github.com/dukex/composer/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockAPI is a mock implementation of the execution API used by the services.
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) ListEntities(ctx context.Context) ([]models.Entity, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Entity), args.Error(1)
}

func (m *MockAPI) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Entity), args.Error(1)
}

func (m *MockAPI) CreateEntity(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	args := m.Called(ctx, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Entity), args.Error(1)
}

func (m *MockAPI) UpdateEntity(ctx context.Context, id string, e *models.Entity) (*models.Entity, error) {
	args := m.Called(ctx, id, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Entity), args.Error(1)
}

func (m *MockAPI) ListTools(ctx context.Context) ([]models.Tool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Tool), args.Error(1)
}

func (m *MockAPI) TriggerExecution(ctx context.Context, req client.TriggerRequest) (string, error) {
	args := m.Called(ctx, req)

	return args.String(0), args.Error(1)
}

func (m *MockAPI) GetRun(ctx context.Context, id string) (*models.ExecutionRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionRun), args.Error(1)
}

func (m *MockAPI) ListRuns(ctx context.Context, limit int) ([]models.ExecutionRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.ExecutionRun), args.Error(1)
}

func (m *MockAPI) ListPendingCheckpoints(ctx context.Context) ([]models.Checkpoint, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Checkpoint), args.Error(1)
}

func (m *MockAPI) RespondCheckpoint(ctx context.Context, id string, resp models.CheckpointResponse) (*models.Checkpoint, error) {
	args := m.Called(ctx, id, resp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Checkpoint), args.Error(1)
}
