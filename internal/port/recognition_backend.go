package port

import (
	"context"

	"docscan/internal/domain"
)

// RecognitionBackend converts a page into text, token boxes and per-token
// confidence. Implementations must be safe for concurrent use and must stop
// work when ctx is done; the per-call timeout arrives as the ctx deadline.
type RecognitionBackend interface {
	Name() string
	Supports(mediaType string) bool
	Recognize(ctx context.Context, page *domain.Page) (*domain.BackendResult, error)
}

// Preprocessor normalizes a page for recognition. Normalize never fails: on
// any internal error it returns the input page unchanged.
type Preprocessor interface {
	Normalize(ctx context.Context, page *domain.Page) *domain.Page
	Shrink(page *domain.Page, factor float64) (*domain.Page, error)
}
