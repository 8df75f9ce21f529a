// Package tesseract recognizes raster pages in-process through libtesseract.
package tesseract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"docscan/internal/config"
	"docscan/internal/domain"
	"docscan/internal/layout"
	"docscan/internal/port"
	"docscan/internal/preprocess"
	"docscan/internal/recognizer/enginepool"
)

// Name is the registry name of this backend.
const Name = "tesseract"

// Engine is the part of a gosseract client the backend drives.
type Engine interface {
	SetImageFromBytes(data []byte) error
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Close() error
}

// Backend implements port.RecognitionBackend on a fixed pool of gosseract
// clients. A client is used by one call at a time; a client still busy when
// its call is cancelled is closed once libtesseract returns and replaced.
type Backend struct {
	pool *enginepool.Pool[Engine]
	log  *slog.Logger
}

// Factory builds the client pool. Language data that cannot be loaded fails
// initialization here rather than on the first document.
func Factory(cfg *config.BackendsConfig, log *slog.Logger) (port.RecognitionBackend, error) {
	return New(cfg.Tesseract, log)
}

// New creates a backend with cfg.PoolSize configured clients.
func New(cfg config.TesseractConfig, log *slog.Logger) (*Backend, error) {
	return NewWithEngines(cfg.PoolSize, func() (Engine, error) { return newClient(cfg) }, log)
}

// NewWithEngines creates a backend over size engines built by build.
func NewWithEngines(size int, build func() (Engine, error), log *slog.Logger) (*Backend, error) {
	pool, err := enginepool.New(size, build, log)
	if err != nil {
		return nil, err
	}
	return &Backend{pool: pool, log: log}, nil
}

func newClient(cfg config.TesseractConfig) (Engine, error) {
	c := gosseract.NewClient()
	if cfg.TessdataPrefix != "" {
		if err := c.SetTessdataPrefix(cfg.TessdataPrefix); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("tesseract: set tessdata prefix: %w", err)
		}
	}
	if len(cfg.Languages) > 0 {
		if err := c.SetLanguage(cfg.Languages...); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("tesseract: set languages %s: %w", strings.Join(cfg.Languages, "+"), err)
		}
	}
	if cfg.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("tesseract: set page segmentation mode: %w", err)
		}
	}
	return c, nil
}

// Close releases every pooled client.
func (b *Backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Supports(mediaType string) bool {
	switch mediaType {
	case domain.MediaTypePNG, domain.MediaTypeJPEG, domain.MediaTypeTIFF, domain.MediaTypeBMP, domain.MediaTypeGIF, domain.MediaTypeWebP:
		return true
	}
	return false
}

func (b *Backend) Recognize(ctx context.Context, page *domain.Page) (*domain.BackendResult, error) {
	var boxes []gosseract.BoundingBox
	err := b.pool.Do(ctx, func(e Engine) error {
		if err := e.SetImageFromBytes(page.Data); err != nil {
			return fmt.Errorf("tesseract: set image: %w", err)
		}
		var err error
		if boxes, err = e.GetBoundingBoxes(gosseract.RIL_WORD); err != nil {
			return fmt.Errorf("tesseract: recognize: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w, h := page.Width, page.Height
	if w <= 0 || h <= 0 {
		if w, h, err = preprocess.Dimensions(page.Data); err != nil {
			return nil, fmt.Errorf("tesseract: %w", err)
		}
	}
	tokens := tokensFromBoxes(boxes, w, h)
	return &domain.BackendResult{Text: layout.Text(tokens), Tokens: tokens}, nil
}

// tokensFromBoxes converts word boxes in pixels to normalized tokens.
// Tesseract reports confidence in percent.
func tokensFromBoxes(boxes []gosseract.BoundingBox, width, height int) []domain.Token {
	tokens := make([]domain.Token, 0, len(boxes))
	fw, fh := float64(width), float64(height)
	for _, bb := range boxes {
		text := strings.TrimSpace(bb.Word)
		if text == "" {
			continue
		}
		tokens = append(tokens, domain.Token{
			Text: text,
			Box: domain.BBox{
				X: float64(bb.Box.Min.X) / fw,
				Y: float64(bb.Box.Min.Y) / fh,
				W: float64(bb.Box.Dx()) / fw,
				H: float64(bb.Box.Dy()) / fh,
			},
			Confidence: bb.Confidence / 100,
		})
	}
	return tokens
}
