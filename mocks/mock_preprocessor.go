package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docscan/internal/domain"
)

// MockPreprocessor is a mock implementation of port.Preprocessor.
type MockPreprocessor struct {
	mock.Mock
}

func (m *MockPreprocessor) Normalize(ctx context.Context, page *domain.Page) *domain.Page {
	args := m.Called(ctx, page)
	if fn, ok := args.Get(0).(func(context.Context, *domain.Page) *domain.Page); ok {
		return fn(ctx, page)
	}
	return args.Get(0).(*domain.Page)
}

func (m *MockPreprocessor) Shrink(page *domain.Page, factor float64) (*domain.Page, error) {
	args := m.Called(page, factor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Page), args.Error(1)
}
