package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vytor/wordflash/internal/models"
)

// MockChangeRepository is a mock implementation of repository.ChangeRepository
type MockChangeRepository struct {
	mock.Mock
}

func (m *MockChangeRepository) Get(ctx context.Context, id string) (*models.PendingChange, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PendingChange), args.Error(1)
}

func (m *MockChangeRepository) GetByVocabularyID(ctx context.Context, vocabularyID string) (*models.PendingChange, error) {
	args := m.Called(ctx, vocabularyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PendingChange), args.Error(1)
}

func (m *MockChangeRepository) List(ctx context.Context) ([]models.PendingChange, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PendingChange), args.Error(1)
}

func (m *MockChangeRepository) Put(ctx context.Context, change models.PendingChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

func (m *MockChangeRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
