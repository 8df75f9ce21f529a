package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docscan/internal/domain"
)

// MockPipeline is a mock implementation of service.Pipeline.
type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) Process(ctx context.Context, req domain.ProcessingRequest) (*domain.ProcessingOutcome, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProcessingOutcome), args.Error(1)
}
