package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docscan/internal/domain"
)

// MockRecognitionBackend is a mock implementation of port.RecognitionBackend.
type MockRecognitionBackend struct {
	mock.Mock
}

// NewMockRecognitionBackend returns a mock that reports name and supports every
// media type. Recognize expectations are left to the caller.
func NewMockRecognitionBackend(name string) *MockRecognitionBackend {
	m := new(MockRecognitionBackend)
	m.On("Name").Return(name).Maybe()
	m.On("Supports", mock.Anything).Return(true).Maybe()
	return m
}

func (m *MockRecognitionBackend) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockRecognitionBackend) Supports(mediaType string) bool {
	args := m.Called(mediaType)
	return args.Bool(0)
}

func (m *MockRecognitionBackend) Recognize(ctx context.Context, page *domain.Page) (*domain.BackendResult, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BackendResult), args.Error(1)
}
