// Package layout rebuilds reading-order lines from positioned tokens.
package layout

import (
	"math"
	"sort"
	"strings"

	"docscan/internal/domain"
)

// Line is a run of tokens sharing a vertical band, ordered left to right.
type Line struct {
	Tokens []domain.Token
	Box    domain.BBox
}

// Text joins the line's tokens with single spaces.
func (l Line) Text() string {
	parts := make([]string, len(l.Tokens))
	for i, t := range l.Tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

// CenterY is the vertical center of the line box.
func (l Line) CenterY() float64 {
	_, y := l.Box.Center()
	return y
}

// Lines groups tokens into lines. A token joins the most recent line on its
// page whose vertical center lies within half a line height of its own.
// Output is ordered by page, then top to bottom.
func Lines(tokens []domain.Token) []Line {
	if len(tokens) == 0 {
		return nil
	}
	sorted := make([]domain.Token, 0, len(tokens))
	for _, t := range tokens {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		sorted = append(sorted, t)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Box, sorted[j].Box
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		_, ay := a.Center()
		_, by := b.Center()
		if ay != by {
			return ay < by
		}
		return a.X < b.X
	})

	var lines []Line
	for _, t := range sorted {
		_, ty := t.Box.Center()
		placed := false
		for i := len(lines) - 1; i >= 0; i-- {
			l := &lines[i]
			if l.Box.Page != t.Box.Page {
				break
			}
			_, ly := l.Box.Center()
			tol := 0.5 * math.Max(l.Box.H, t.Box.H)
			if math.Abs(ty-ly) <= tol {
				l.Tokens = append(l.Tokens, t)
				l.Box = l.Box.Union(t.Box)
				placed = true
				break
			}
			if ty-ly > 2*math.Max(l.Box.H, t.Box.H) {
				break
			}
		}
		if !placed {
			lines = append(lines, Line{Tokens: []domain.Token{t}, Box: t.Box})
		}
	}

	for i := range lines {
		sort.SliceStable(lines[i].Tokens, func(a, b int) bool {
			return lines[i].Tokens[a].Box.X < lines[i].Tokens[b].Box.X
		})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Box.Page != lines[j].Box.Page {
			return lines[i].Box.Page < lines[j].Box.Page
		}
		return lines[i].Box.Y < lines[j].Box.Y
	})
	return lines
}

// Text renders tokens as reading-order text, one line per row.
func Text(tokens []domain.Token) string {
	lines := Lines(tokens)
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text()
	}
	return strings.Join(out, "\n")
}
