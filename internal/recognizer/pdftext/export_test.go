package pdftext

import (
	"github.com/ledongthuc/pdf"

	"docscan/internal/domain"
)

// WordsFromGlyphs groups glyphs on a 600x800 point page.
func WordsFromGlyphs(glyphs []pdf.Text, pageIdx int) []domain.Token {
	return wordsFromGlyphs(glyphs, pageBox{0, 0, 600, 800}, pageIdx)
}
