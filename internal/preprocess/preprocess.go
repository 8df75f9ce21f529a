package preprocess

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"docscan/internal/config"
	"docscan/internal/domain"
)

// a4WidthInches is used to estimate the scan resolution from the pixel width.
const a4WidthInches = 8.27

// Preprocessor normalizes raster pages before recognition. It holds no
// per-document state and is safe for concurrent use.
type Preprocessor struct {
	cfg config.PreprocessConfig
	log *slog.Logger
}

// New creates a Preprocessor.
func New(cfg config.PreprocessConfig, log *slog.Logger) *Preprocessor {
	return &Preprocessor{cfg: cfg, log: log}
}

// Normalize deskews, denoises, stretches contrast and rescales a raster page.
// Non-raster pages are returned as-is. Any failure, including a panic inside a
// decoder, yields the original page.
func (p *Preprocessor) Normalize(ctx context.Context, page *domain.Page) (out *domain.Page) {
	if !p.cfg.Enabled || !page.IsRaster() {
		return page
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("preprocess: recovered, using original page", "panic", fmt.Sprint(r))
			out = page
		}
	}()

	normalized, err := p.normalize(ctx, page)
	if err != nil {
		p.log.Warn("preprocess: normalization skipped", "error", err)
		return page
	}
	return normalized
}

func (p *Preprocessor) normalize(ctx context.Context, page *domain.Page) (*domain.Page, error) {
	src, err := decode(page.Data, p.cfg.MaxPixels)
	if err != nil {
		return nil, err
	}
	gray := toGray(src)

	if p.cfg.Deskew {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		angle := estimateSkew(gray, p.cfg.MaxSkewDegrees, p.cfg.SkewStepDegrees)
		if angle != 0 {
			p.log.Debug("preprocess: deskew", "angle_deg", angle)
			gray = rotate(gray, angle)
		}
	}
	if p.cfg.Denoise {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		gray = medianFilter(gray)
	}
	if p.cfg.Contrast {
		gray = stretchContrast(gray, 0.01, 0.99)
	}
	if p.cfg.Rescale {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		factor := scaleFactor(gray.Bounds(), p.cfg.TargetDPI, p.cfg.MaxPixels)
		if factor != 1 {
			gray = scale(gray, factor)
		}
	}
	return encodePage(gray)
}

// Shrink downsamples a raster page by factor (0 < factor < 1). It backs the
// degrade-and-retry path for backends that ran out of memory.
func (p *Preprocessor) Shrink(page *domain.Page, factor float64) (*domain.Page, error) {
	if !page.IsRaster() {
		return nil, fmt.Errorf("preprocess.Shrink: %w: %s", domain.ErrUnsupportedMediaType, page.MediaType)
	}
	if factor <= 0 || factor >= 1 || math.IsNaN(factor) {
		return nil, fmt.Errorf("preprocess.Shrink: invalid factor %v", factor)
	}
	src, err := decode(page.Data, 0)
	if err != nil {
		return nil, fmt.Errorf("preprocess.Shrink: %w", err)
	}
	gray := scale(toGray(src), factor)
	if gray.Bounds().Dx() < 1 || gray.Bounds().Dy() < 1 {
		return nil, errors.New("preprocess.Shrink: page too small to shrink")
	}
	out, err := encodePage(gray)
	if err != nil {
		return nil, fmt.Errorf("preprocess.Shrink: %w", err)
	}
	return out, nil
}

// scaleFactor returns the factor that brings the estimated resolution to
// targetDPI, capped so the result stays under maxPixels.
func scaleFactor(b image.Rectangle, targetDPI, maxPixels int) float64 {
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 || targetDPI <= 0 {
		return 1
	}
	dpi := float64(w) / a4WidthInches
	factor := float64(targetDPI) / dpi
	if math.Abs(factor-1) < 0.1 {
		factor = 1
	}
	factor = math.Max(0.25, math.Min(4, factor))
	if maxPixels > 0 {
		limit := math.Sqrt(float64(maxPixels) / float64(w*h))
		if factor > limit {
			factor = limit
		}
	}
	return factor
}
