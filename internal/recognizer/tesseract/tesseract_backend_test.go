package tesseract_test

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docscan/internal/domain"
	"docscan/internal/logging"
	"docscan/internal/recognizer/tesseract"
)

func TestTokensFromBoxes(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(100, 50, 300, 80), Word: "Faktura", Confidence: 96},
		{Box: image.Rect(310, 50, 360, 80), Word: "  ", Confidence: 40},
		{Box: image.Rect(320, 50, 400, 80), Word: "VAT", Confidence: 88.5},
	}

	tokens := tesseract.TokensFromBoxes(boxes, 1000, 1000)

	require.Len(t, tokens, 2)
	assert.Equal(t, "Faktura", tokens[0].Text)
	assert.InDelta(t, 0.96, tokens[0].Confidence, 1e-9)
	assert.InDelta(t, 0.1, tokens[0].Box.X, 1e-9)
	assert.InDelta(t, 0.05, tokens[0].Box.Y, 1e-9)
	assert.InDelta(t, 0.2, tokens[0].Box.W, 1e-9)
	assert.InDelta(t, 0.03, tokens[0].Box.H, 1e-9)
	assert.InDelta(t, 0.885, tokens[1].Confidence, 1e-9)
}

func TestBackend_Supports(t *testing.T) {
	var b tesseract.Backend
	assert.True(t, b.Supports(domain.MediaTypeTIFF))
	assert.False(t, b.Supports(domain.MediaTypePDF))
	assert.Equal(t, tesseract.Name, b.Name())
}

// scriptedEngine stands in for a gosseract client. Calls block on hold when
// it is non-nil.
type scriptedEngine struct {
	hold   chan struct{}
	mu     sync.Mutex
	closed bool
}

func (e *scriptedEngine) SetImageFromBytes([]byte) error { return nil }

func (e *scriptedEngine) GetBoundingBoxes(gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error) {
	if e.hold != nil {
		<-e.hold
	}
	return []gosseract.BoundingBox{{Box: image.Rect(10, 10, 60, 30), Word: "Faktura", Confidence: 90}}, nil
}

func (e *scriptedEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *scriptedEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func TestBackend_Recognize(t *testing.T) {
	b, err := tesseract.NewWithEngines(1, func() (tesseract.Engine, error) { return &scriptedEngine{}, nil }, logging.Discard())
	require.NoError(t, err)
	defer b.Close()

	res, err := b.Recognize(context.Background(), &domain.Page{MediaType: domain.MediaTypePNG, Width: 100, Height: 100})
	require.NoError(t, err)
	require.Len(t, res.Tokens, 1)
	assert.Equal(t, "Faktura", res.Tokens[0].Text)
	assert.InDelta(t, 0.9, res.Tokens[0].Confidence, 1e-9)
}

func TestBackend_Recognize_CancelledCallFreesItsSlot(t *testing.T) {
	hold := make(chan struct{})
	var mu sync.Mutex
	var engines []*scriptedEngine
	build := func() (tesseract.Engine, error) {
		mu.Lock()
		defer mu.Unlock()
		e := &scriptedEngine{}
		if len(engines) == 0 {
			e.hold = hold
		}
		engines = append(engines, e)
		return e, nil
	}
	b, err := tesseract.NewWithEngines(1, build, logging.Discard())
	require.NoError(t, err)
	defer b.Close()
	page := &domain.Page{MediaType: domain.MediaTypePNG, Width: 100, Height: 100}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = b.Recognize(ctx, page)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	// The stuck client is still inside libtesseract; a fresh one serves the
	// next document.
	next, cancelNext := context.WithTimeout(context.Background(), time.Second)
	defer cancelNext()
	res, err := b.Recognize(next, page)
	require.NoError(t, err)
	assert.Len(t, res.Tokens, 1)

	close(hold)
	mu.Lock()
	stuck := engines[0]
	mu.Unlock()
	require.Eventually(t, stuck.isClosed, time.Second, 5*time.Millisecond)
}
