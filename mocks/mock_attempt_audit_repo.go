package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"docscan/internal/domain"
)

// MockAttemptAuditRepo is a mock implementation of port.AttemptAuditRepository.
type MockAttemptAuditRepo struct {
	mock.Mock
}

func (m *MockAttemptAuditRepo) CreateBatch(ctx context.Context, documentID uuid.UUID, attempts []domain.Attempt) error {
	args := m.Called(ctx, documentID, attempts)
	return args.Error(0)
}

func (m *MockAttemptAuditRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]domain.AttemptRecord, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AttemptRecord), args.Error(1)
}
