package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"docscan/internal/domain"
)

// MockOutcomeRepo is a mock implementation of port.OutcomeRepository.
type MockOutcomeRepo struct {
	mock.Mock
}

func (m *MockOutcomeRepo) Save(ctx context.Context, outcome *domain.ProcessingOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

func (m *MockOutcomeRepo) GetByDocumentID(ctx context.Context, documentID uuid.UUID) (*domain.ProcessingOutcome, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingOutcome), args.Error(1)
}
