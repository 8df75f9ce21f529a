// Package tesseractcli recognizes raster pages by running the tesseract
// binary as a subprocess and parsing its TSV output.
package tesseractcli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"docscan/internal/config"
	"docscan/internal/domain"
	"docscan/internal/layout"
	"docscan/internal/port"
	"docscan/internal/recognizer"
)

// Name is the registry name of this backend.
const Name = "tesseract_cli"

// Backend implements port.RecognitionBackend on top of the tesseract CLI.
type Backend struct {
	binary string
	langs  string
	psm    int
	log    *slog.Logger
}

// Factory resolves the binary on PATH. A missing binary fails initialization.
func Factory(cfg *config.BackendsConfig, log *slog.Logger) (port.RecognitionBackend, error) {
	return New(cfg.TesseractCLI, log)
}

// New creates a CLI backend. The binary is looked up once.
func New(cfg config.TesseractConfig, log *slog.Logger) (*Backend, error) {
	bin := cfg.BinaryPath
	if bin == "" {
		bin = "tesseract"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("tesseract_cli: %w", err)
	}
	psm := cfg.PageSegMode
	if psm <= 0 {
		psm = 3
	}
	langs := strings.Join(cfg.Languages, "+")
	if langs == "" {
		langs = "eng"
	}
	return &Backend{binary: path, langs: langs, psm: psm, log: log}, nil
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
	cmd := exec.CommandContext(ctx, b.binary, "stdin", "stdout",
		"-l", b.langs, "--psm", strconv.Itoa(b.psm), "tsv")
	cmd.Stdin = bytes.NewReader(page.Data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("tesseract_cli: %w: %s", err, recognizer.Truncate(strings.TrimSpace(stderr.String()), 300))
	}

	tokens, err := ParseTSV(stdout.Bytes(), page.Width, page.Height)
	if err != nil {
		return nil, err
	}
	return &domain.BackendResult{Text: layout.Text(tokens), Tokens: tokens}, nil
}

// TSV column indexes as printed by tesseract.
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	numCols
)

const (
	levelPage = 1
	levelWord = 5
)

// ParseTSV converts tesseract TSV output into normalized word tokens. Page
// dimensions come from the page-level rows; width and height are used when
// the output has none.
func ParseTSV(data []byte, width, height int) ([]domain.Token, error) {
	type row struct {
		page            int
		left, top, w, h float64
		conf            float64
		text            string
	}
	var words []row
	pageDims := map[int][2]float64{}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	header := true
	for sc.Scan() {
		line := sc.Text()
		if header {
			header = false
			if strings.HasPrefix(line, "level") {
				continue
			}
		}
		cols := strings.Split(line, "\t")
		if len(cols) < numCols-1 {
			continue
		}
		nums := make([]float64, colText)
		bad := false
		for i := colLevel; i < colText; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(cols[i]), 64)
			if err != nil {
				bad = true
				break
			}
			nums[i] = v
		}
		if bad {
			continue
		}
		page := int(nums[colPage]) - 1
		switch int(nums[colLevel]) {
		case levelPage:
			pageDims[page] = [2]float64{nums[colWidth], nums[colHeight]}
		case levelWord:
			text := ""
			if len(cols) > colText {
				text = strings.TrimSpace(cols[colText])
			}
			if text == "" || nums[colConf] < 0 {
				continue
			}
			words = append(words, row{
				page: page, left: nums[colLeft], top: nums[colTop],
				w: nums[colWidth], h: nums[colHeight], conf: nums[colConf], text: text,
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("tesseract_cli: reading tsv: %w", err)
	}

	tokens := make([]domain.Token, 0, len(words))
	for _, w := range words {
		dims, ok := pageDims[w.page]
		if !ok || dims[0] <= 0 || dims[1] <= 0 {
			dims = [2]float64{float64(width), float64(height)}
		}
		if dims[0] <= 0 || dims[1] <= 0 {
			return nil, errors.New("tesseract_cli: page dimensions unknown")
		}
		if w.page < 0 {
			w.page = 0
		}
		tokens = append(tokens, domain.Token{
			Text: w.text,
			Box: domain.BBox{
				Page: w.page,
				X:    w.left / dims[0],
				Y:    w.top / dims[1],
				W:    w.w / dims[0],
				H:    w.h / dims[1],
			},
			Confidence: w.conf / 100,
		})
	}
	return tokens, nil
}
