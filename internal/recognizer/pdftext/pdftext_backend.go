// Package pdftext reads the embedded text layer of digital PDFs. Scanned PDFs
// have no text layer and produce an empty result.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"docscan/internal/config"
	"docscan/internal/domain"
	"docscan/internal/layout"
	"docscan/internal/port"
)

// Name is the registry name of this backend.
const Name = "pdftext"

// US Letter in points, used when a page declares no MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// Backend implements port.RecognitionBackend for PDF text layers.
type Backend struct {
	log *slog.Logger
}

// Factory never fails; the backend has no external resources.
func Factory(_ *config.BackendsConfig, log *slog.Logger) (port.RecognitionBackend, error) {
	return New(log), nil
}

// New creates a PDF text-layer backend.
func New(log *slog.Logger) *Backend {
	return &Backend{log: log}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Supports(mediaType string) bool {
	return mediaType == domain.MediaTypePDF
}

func (b *Backend) Recognize(ctx context.Context, page *domain.Page) (res *domain.BackendResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("pdftext: malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(page.Data), int64(len(page.Data)))
	if err != nil {
		return nil, fmt.Errorf("pdftext: opening pdf: %w", err)
	}

	var tokens []domain.Token
	for i := 1; i <= reader.NumPage(); i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		box := mediaBox(p.V)
		tokens = append(tokens, wordsFromGlyphs(p.Content().Text, box, i-1)...)
	}
	return &domain.BackendResult{Text: layout.Text(tokens), Tokens: tokens}, nil
}

// pageBox is a MediaBox in PDF user space.
type pageBox struct {
	llx, lly, urx, ury float64
}

func (b pageBox) width() float64  { return b.urx - b.llx }
func (b pageBox) height() float64 { return b.ury - b.lly }

// mediaBox resolves the page MediaBox, following inheritance from parent
// page-tree nodes.
func mediaBox(v pdf.Value) pageBox {
	for depth := 0; !v.IsNull() && depth < 32; depth++ {
		mb := v.Key("MediaBox")
		if mb.Kind() == pdf.Array && mb.Len() == 4 {
			b := pageBox{mb.Index(0).Float64(), mb.Index(1).Float64(), mb.Index(2).Float64(), mb.Index(3).Float64()}
			if b.width() > 0 && b.height() > 0 {
				return b
			}
		}
		v = v.Key("Parent")
	}
	return pageBox{0, 0, defaultPageWidth, defaultPageHeight}
}

// Glyph runs further apart than this fraction of the font size start a new word.
const wordGapRatio = 0.25

// wordsFromGlyphs groups positioned glyph runs into words and converts them to
// normalized top-left coordinates. Text-layer tokens have full confidence.
func wordsFromGlyphs(glyphs []pdf.Text, box pageBox, pageIdx int) []domain.Token {
	sorted := make([]pdf.Text, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S != "" {
			sorted = append(sorted, g)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if math.Abs(a.Y-b.Y) > 0.5*math.Max(a.FontSize, 1) {
			return a.Y > b.Y
		}
		return a.X < b.X
	})

	var tokens []domain.Token
	var cur strings.Builder
	var x0, x1, base, size float64
	flush := func() {
		text := strings.TrimSpace(cur.String())
		cur.Reset()
		if text == "" {
			return
		}
		top := base + 0.8*size
		tokens = append(tokens, domain.Token{
			Text: text,
			Box: domain.BBox{
				Page: pageIdx,
				X:    clamp01((x0 - box.llx) / box.width()),
				Y:    clamp01((box.ury - top) / box.height()),
				W:    clamp01((x1 - x0) / box.width()),
				H:    clamp01(size / box.height()),
			},
			Confidence: 1,
		})
	}

	for _, g := range sorted {
		fs := math.Max(g.FontSize, 1)
		sameLine := cur.Len() > 0 && math.Abs(g.Y-base) <= 0.5*fs
		if !sameLine || g.X-x1 > wordGapRatio*fs {
			flush()
		}
		runes := []rune(g.S)
		adv := g.W / float64(len(runes))
		for k, r := range runes {
			rx := g.X + adv*float64(k)
			if unicode.IsSpace(r) {
				flush()
				continue
			}
			if cur.Len() == 0 {
				x0, base, size = rx, g.Y, fs
			}
			cur.WriteRune(r)
			x1 = rx + adv
		}
	}
	flush()
	return tokens
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
