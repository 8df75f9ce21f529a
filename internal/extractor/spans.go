package extractor

import (
	"math"
	"strings"
	"unicode"

	"docscan/internal/domain"
	"docscan/internal/layout"
)

// span is a run of adjacent tokens on one line read as a single value or label.
type span struct {
	line   int
	tokens []domain.Token
	text   string
	box    domain.BBox
}

func newSpan(line int, tokens []domain.Token) span {
	parts := make([]string, len(tokens))
	box := tokens[0].Box
	for i, t := range tokens {
		parts[i] = t.Text
		box = box.Union(t.Box)
	}
	return span{line: line, tokens: tokens, text: strings.Join(parts, " "), box: box}
}

func (s span) confidence() float64 {
	if len(s.tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range s.tokens {
		sum += t.Confidence
	}
	return sum / float64(len(s.tokens))
}

// adjacent reports whether b follows a closely enough to belong to the same
// value. Column gaps in tables are much wider than digit-group spacing.
func adjacent(a, b domain.Token) bool {
	gap := b.Box.X - a.Box.Right()
	return gap <= 1.5*math.Max(a.Box.H, b.Box.H)
}

// valueSpansN returns the longest non-overlapping spans of at most maxTokens
// tokens on each line whose text satisfies match, in reading order.
func valueSpansN(lines []layout.Line, match func(string) bool, maxTokens int) []span {
	var out []span
	for li, l := range lines {
		toks := l.Tokens
		for i := 0; i < len(toks); {
			found := 0
			for j := min(len(toks), i+maxTokens); j > i; j-- {
				if !contiguous(toks[i:j]) {
					continue
				}
				if match(joinText(toks[i:j])) {
					found = j
					break
				}
			}
			if found == 0 {
				i++
				continue
			}
			out = append(out, newSpan(li, toks[i:found]))
			i = found
		}
	}
	return out
}

func contiguous(toks []domain.Token) bool {
	for k := 1; k < len(toks); k++ {
		if !adjacent(toks[k-1], toks[k]) {
			return false
		}
	}
	return true
}

func joinText(toks []domain.Token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

// labelKey folds a token for label comparison, dropping surrounding punctuation.
func labelKey(s string) string {
	return strings.Trim(Fold(s), ":.,;()[]#")
}

// labelSpans finds every occurrence of any of the phrases. Phrases are given
// as space-separated words and compared after folding.
func labelSpans(lines []layout.Line, phrases []string) []span {
	var out []span
	for li, l := range lines {
		keys := make([]string, len(l.Tokens))
		for i, t := range l.Tokens {
			keys[i] = labelKey(t.Text)
		}
		for i := 0; i < len(keys); i++ {
			for _, p := range phrases {
				words := strings.Fields(p)
				if i+len(words) > len(keys) {
					continue
				}
				ok := true
				for k, w := range words {
					if keys[i+k] != labelKey(w) {
						ok = false
						break
					}
				}
				if ok {
					out = append(out, newSpan(li, l.Tokens[i:i+len(words)]))
					break
				}
			}
		}
	}
	return out
}

// followsLabel reports whether value lies to the right of the label on the
// same band, or anywhere below it on the same page.
func followsLabel(label, value domain.BBox) bool {
	if label.Page != value.Page {
		return false
	}
	_, ly := label.Center()
	_, vy := value.Center()
	band := 0.5 * math.Max(label.H, value.H)
	if math.Abs(vy-ly) <= band {
		return value.X >= label.Right()-0.25*label.H
	}
	return vy > ly
}

// match is a resolved value with the distance to its label, when it has one.
type match struct {
	value    span
	label    *span
	distance float64
}

// nearest picks, over all labels, the value span closest to a label that it
// follows. Ties keep the earlier label and value in reading order.
func nearest(labels, values []span) (match, bool) {
	best := match{distance: math.Inf(1)}
	found := false
	for li := range labels {
		l := labels[li]
		for _, v := range values {
			if overlapsTokens(l, v) || !followsLabel(l.box, v.box) {
				continue
			}
			if d := l.box.Distance(v.box); d < best.distance {
				best = match{value: v, label: &labels[li], distance: d}
				found = true
			}
		}
	}
	return best, found
}

func overlapsTokens(a, b span) bool {
	if a.line != b.line {
		return false
	}
	return a.box.IoU(b.box) > 0
}

// splitGlued separates tokens such as "NIP:1234563218" into a label token and
// a value token, dividing the box in proportion to the text length.
func splitGlued(tokens []domain.Token) []domain.Token {
	out := make([]domain.Token, 0, len(tokens))
	for _, t := range tokens {
		i := strings.Index(t.Text, ":")
		if i <= 0 || i == len(t.Text)-1 || !isLetters(t.Text[:i]) {
			out = append(out, t)
			continue
		}
		n := float64(len([]rune(t.Text)))
		head := t.Text[:i+1]
		frac := float64(len([]rune(head))) / n
		left, right := t, t
		left.Text = head
		left.Box.W = t.Box.W * frac
		right.Text = t.Text[i+1:]
		right.Box.X = t.Box.X + left.Box.W
		right.Box.W = t.Box.W - left.Box.W
		out = append(out, left, right)
	}
	return out
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}
