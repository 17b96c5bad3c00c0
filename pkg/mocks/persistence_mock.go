package mocks

import (
	"context"

	"github.com/dukex/composer/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) Drafts(ctx context.Context) ([]*persistence.Draft, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*persistence.Draft), args.Error(1)
}

func (m *MockPersistence) SaveDraft(ctx context.Context, draft *persistence.Draft) error {
	args := m.Called(ctx, draft)

	return args.Error(0)
}

func (m *MockPersistence) DraftByID(ctx context.Context, sessionID string) (*persistence.Draft, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.Draft), args.Error(1)
}

func (m *MockPersistence) DeleteDraft(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)

	return args.Error(0)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
