// Package bootstrap assembles the recognition pipeline from configuration.
package bootstrap

import (
	"fmt"
	"log/slog"
	"sync"

	"docscan/internal/config"
	"docscan/internal/confidence"
	"docscan/internal/domain"
	"docscan/internal/extractor"
	"docscan/internal/pipeline"
	"docscan/internal/preprocess"
	"docscan/internal/recognizer"
	"docscan/internal/recognizer/claude"
	"docscan/internal/recognizer/gemini"
	"docscan/internal/recognizer/openai"
	"docscan/internal/recognizer/pdftext"
	"docscan/internal/recognizer/tesseract"
	"docscan/internal/recognizer/tesseractcli"
	"docscan/internal/validator"
)

var registerOnce sync.Once

// RegisterBackends adds every built-in backend factory to the recognizer
// registry. Safe to call more than once.
func RegisterBackends() {
	registerOnce.Do(func() {
		recognizer.RegisterBackend(pdftext.Name, pdftext.Factory)
		recognizer.RegisterBackend(tesseract.Name, tesseract.Factory)
		recognizer.RegisterBackend(tesseractcli.Name, tesseractcli.Factory)
		recognizer.RegisterBackend(claude.Name, claude.Factory)
		recognizer.RegisterBackend(gemini.Name, gemini.Factory)
		recognizer.RegisterBackend(openai.Name, openai.Factory)
	})
}

// Pipeline is an assembled controller plus the backends it owns.
type Pipeline struct {
	Controller *pipeline.Controller
	Backends   *recognizer.Set
}

// Close releases backend resources.
func (p *Pipeline) Close() {
	p.Backends.Close()
}

// NewPipeline initializes the named backends, or every registered backend
// when names is empty, and wires every stage. Backends that fail to
// initialize stay addressable and fail their attempts with an initialization
// error.
func NewPipeline(cfg *config.Config, names []string, log *slog.Logger) (*Pipeline, error) {
	RegisterBackends()
	if len(names) == 0 {
		names = recognizer.Registered()
	}

	set, err := recognizer.BuildSet(names, &cfg.Backends, log)
	if err != nil {
		return nil, fmt.Errorf("bootstrap.NewPipeline: %w", err)
	}

	deps := pipeline.Deps{
		Backends:     set,
		Preprocessor: preprocess.New(cfg.Preprocess, log),
		Recognizer: recognizer.NewComposite(recognizer.Options{
			MinTokenConfidence: cfg.Pipeline.MinTokenConfidence,
			MaxParallel:        cfg.Pipeline.MaxParallel,
			OverlapIoU:         cfg.Pipeline.OverlapIoU,
		}, log),
		Extractor: extractor.New(),
		Validator: validator.NewEngine(validator.NewDefaultRegistry(), validator.WithLogger(log)),
		Scorer:    confidence.New(cfg.Confidence),
	}
	ctrl := pipeline.NewController(deps, pipeline.Options{
		MaxParallel:        cfg.Pipeline.MaxParallel,
		MinTokenConfidence: cfg.Pipeline.MinTokenConfidence,
		ShrinkFactor:       cfg.Pipeline.ShrinkFactor,
	}, log)

	return &Pipeline{Controller: ctrl, Backends: set}, nil
}

// Mode parses a recognition mode, falling back to def when raw is empty.
func Mode(raw, def string) (domain.RecognitionMode, error) {
	if raw == "" {
		raw = def
	}
	m := domain.RecognitionMode(raw)
	if !m.Valid() {
		return "", fmt.Errorf("%w: mode %q", domain.ErrMalformedInput, raw)
	}
	return m, nil
}
