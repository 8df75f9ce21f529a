package recognizer_test

import (
	"context"

	"docscan/internal/domain"
)

// funcBackend adapts a function to port.RecognitionBackend.
type funcBackend struct {
	name  string
	media map[string]bool
	fn    func(ctx context.Context, page *domain.Page) (*domain.BackendResult, error)
}

func (f *funcBackend) Name() string { return f.name }

func (f *funcBackend) Supports(mediaType string) bool {
	if f.media == nil {
		return true
	}
	return f.media[mediaType]
}

func (f *funcBackend) Recognize(ctx context.Context, page *domain.Page) (*domain.BackendResult, error) {
	return f.fn(ctx, page)
}

func tok(text string, x, y, conf float64) domain.Token {
	return domain.Token{Text: text, Box: domain.BBox{X: x, Y: y, W: 0.1, H: 0.02}, Confidence: conf}
}

func result(tokens ...domain.Token) *domain.BackendResult {
	return &domain.BackendResult{Tokens: tokens}
}

func blocking(name string) *funcBackend {
	return &funcBackend{name: name, fn: func(ctx context.Context, _ *domain.Page) (*domain.BackendResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

func page() *domain.Page {
	return &domain.Page{MediaType: domain.MediaTypePNG, Data: []byte("png")}
}
