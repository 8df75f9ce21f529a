package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"docscan/internal/domain"
	"docscan/internal/service"
)

// MockProcessingService is a mock implementation of service.ProcessingService.
type MockProcessingService struct {
	mock.Mock
}

func (m *MockProcessingService) Process(ctx context.Context, input service.ProcessInput) (*domain.ProcessingOutcome, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingOutcome), args.Error(1)
}

func (m *MockProcessingService) ProcessStored(ctx context.Context, input service.ProcessStoredInput) (*domain.ProcessingOutcome, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingOutcome), args.Error(1)
}

func (m *MockProcessingService) GetOutcome(ctx context.Context, documentID uuid.UUID) (*domain.ProcessingOutcome, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingOutcome), args.Error(1)
}

func (m *MockProcessingService) ListAttempts(ctx context.Context, documentID uuid.UUID) ([]domain.AttemptRecord, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AttemptRecord), args.Error(1)
}
