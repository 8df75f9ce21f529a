package pipeline

import (
	"bytes"
	"fmt"
	"math"

	"docscan/internal/domain"
	"docscan/internal/preprocess"
	"docscan/internal/port"
)

var pdfMagic = []byte("%PDF-")

// pageFor checks the document and builds the page handed to backends.
func pageFor(doc domain.Document) (*domain.Page, error) {
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("pipeline: %w: empty document", domain.ErrMalformedInput)
	}
	if !domain.AllowedMediaTypes[doc.MediaType] {
		return nil, fmt.Errorf("pipeline: %w: %q", domain.ErrUnsupportedMediaType, doc.MediaType)
	}
	page := &domain.Page{MediaType: doc.MediaType, Data: doc.Data}
	if doc.MediaType == domain.MediaTypePDF {
		if !bytes.HasPrefix(doc.Data, pdfMagic) {
			return nil, fmt.Errorf("pipeline: %w: missing PDF header", domain.ErrMalformedInput)
		}
		return page, nil
	}
	w, h, err := preprocess.Dimensions(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w: %v", domain.ErrMalformedInput, err)
	}
	page.Width, page.Height = w, h
	return page, nil
}

// backendSets splits the ordered backends into the units the controller
// falls back across: one backend per set in sequential mode, chunks of
// maxParallel in parallel mode.
func backendSets(backends []port.RecognitionBackend, mode domain.RecognitionMode, maxParallel int) [][]port.RecognitionBackend {
	size := 1
	if mode == domain.ModeParallel {
		size = max(maxParallel, 1)
	}
	var sets [][]port.RecognitionBackend
	for i := 0; i < len(backends); i += size {
		sets = append(sets, backends[i:min(i+size, len(backends))])
	}
	return sets
}

func (c *Controller) resolve(req *domain.ProcessingRequest) ([]port.RecognitionBackend, error) {
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("pipeline: %w: mode %q", domain.ErrMalformedInput, req.Mode)
	}
	if len(req.Backends) == 0 {
		return nil, fmt.Errorf("pipeline: %w", domain.ErrNoBackends)
	}
	if math.IsNaN(req.MinConfidence) || req.MinConfidence < 0 || req.MinConfidence > 100 {
		return nil, fmt.Errorf("pipeline: %w: min confidence %v", domain.ErrMalformedInput, req.MinConfidence)
	}
	if req.BackendTimeout < 0 || req.Deadline < 0 {
		return nil, fmt.Errorf("pipeline: %w: negative timeout", domain.ErrMalformedInput)
	}
	backends, err := c.backends.Resolve(req.Backends)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return backends, nil
}
