// Package confidence fuses recognition, extraction, validation and layout
// signals into a single score in [0,100].
package confidence

import (
	"math"
	"strings"

	"docscan/internal/config"
	"docscan/internal/domain"
	"docscan/internal/extractor"
	"docscan/internal/layout"
	"docscan/internal/validator"
)

// Spatial term values for the degenerate cases.
const (
	spatialNoTokens     = 0.0
	spatialSingleTokens = 0.5
)

// Calculator scores backend results with fixed weights. It holds no state
// beyond its configuration.
type Calculator struct {
	cfg      config.ConfidenceConfig
	expected []domain.FieldName
}

// New creates a Calculator. An empty ExpectedFields list falls back to
// domain.DefaultExpectedFields.
func New(cfg config.ConfidenceConfig) *Calculator {
	expected := make([]domain.FieldName, 0, len(cfg.ExpectedFields))
	for _, f := range cfg.ExpectedFields {
		expected = append(expected, domain.FieldName(f))
	}
	if len(expected) == 0 {
		expected = domain.DefaultExpectedFields
	}
	return &Calculator{cfg: cfg, expected: expected}
}

// Score scores res and its validated fields against the configured expected
// field set.
func (c *Calculator) Score(res *domain.BackendResult, fields []domain.CandidateField) domain.ConfidenceBreakdown {
	return Score(c.cfg, res, fields, c.expected)
}

// Score computes the confidence breakdown. Each weighted term contributes
// weight·term·(100-bonus) points with weights normalized to sum to 1; the
// locale term adds the bonus when Polish cues appear. The result is always
// within [0,100], whatever the inputs.
func Score(cfg config.ConfidenceConfig, res *domain.BackendResult, fields []domain.CandidateField, expected []domain.FieldName) domain.ConfidenceBreakdown {
	weights := []float64{
		nonNegative(cfg.BackendWeight),
		nonNegative(cfg.ExtractionWeight),
		nonNegative(cfg.ValidationWeight),
		nonNegative(cfg.SpatialWeight),
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum > 0 && !math.IsInf(sum, 0) {
		for i := range weights {
			weights[i] /= sum
		}
	} else {
		weights = []float64{0, 0, 0, 0}
	}
	bonus := clamp(finite(cfg.LocaleBonus), 0, 100)
	span := 100 - bonus

	tokens := sanitizeTokens(res)
	b := domain.ConfidenceBreakdown{
		Backend:    finite(weights[0] * BackendTerm(tokens) * span),
		Extraction: finite(weights[1] * ExtractionTerm(fields, expected) * span),
		Validation: finite(weights[2] * ValidationTerm(fields) * span),
		Spatial:    finite(weights[3] * SpatialTerm(tokens, cfg.SpatialSensitivity) * span),
	}
	if hasLocaleCues(res, tokens, fields) {
		b.Locale = bonus
	}
	b.Score = clamp(finite(b.Backend+b.Extraction+b.Validation+b.Spatial+b.Locale), 0, 100)
	return b
}

// BackendTerm is the mean token confidence.
func BackendTerm(tokens []domain.Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += t.Confidence
	}
	return clamp(sum/float64(len(tokens)), 0, 1)
}

// ExtractionTerm is the fraction of expected fields present in fields.
func ExtractionTerm(fields []domain.CandidateField, expected []domain.FieldName) float64 {
	if len(expected) == 0 {
		return 0
	}
	present := make(map[domain.FieldName]bool, len(fields))
	for _, f := range fields {
		present[f.Name] = true
	}
	want := make(map[domain.FieldName]bool, len(expected))
	hit := 0
	for _, e := range expected {
		if want[e] {
			continue
		}
		want[e] = true
		if present[e] {
			hit++
		}
	}
	return float64(hit) / float64(len(want))
}

// ValidationTerm is the fraction of passed outcomes over fields that had at
// least one rule, 0 when no rule ran.
func ValidationTerm(fields []domain.CandidateField) float64 {
	passed, total := validator.PassCounts(fields)
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total)
}

// SpatialTerm rates baseline alignment: 1/(1+σ²·sensitivity), where σ² is
// the mean per-line variance of token baselines relative to the line height.
// Lines with fewer than two tokens carry no alignment signal.
func SpatialTerm(tokens []domain.Token, sensitivity float64) float64 {
	if len(tokens) == 0 {
		return spatialNoTokens
	}
	sensitivity = nonNegative(sensitivity)

	var variances []float64
	for _, l := range layout.Lines(tokens) {
		if len(l.Tokens) < 2 {
			continue
		}
		var meanBase, meanH float64
		for _, t := range l.Tokens {
			meanBase += t.Box.Bottom()
			meanH += t.Box.H
		}
		n := float64(len(l.Tokens))
		meanBase /= n
		meanH /= n
		if meanH <= 0 {
			continue
		}
		var v float64
		for _, t := range l.Tokens {
			d := (t.Box.Bottom() - meanBase) / meanH
			v += d * d
		}
		variances = append(variances, v/n)
	}
	if len(variances) == 0 {
		return spatialSingleTokens
	}
	var sigma2 float64
	for _, v := range variances {
		sigma2 += v
	}
	sigma2 /= float64(len(variances))
	return finite(1 / (1 + sigma2*sensitivity))
}

func hasLocaleCues(res *domain.BackendResult, tokens []domain.Token, fields []domain.CandidateField) bool {
	var parts []string
	if res != nil {
		parts = append(parts, res.Text)
	}
	parts = append(parts, layout.Text(tokens))
	for _, f := range fields {
		parts = append(parts, f.RawValue)
	}
	text := strings.Join(parts, "\n")
	return extractor.HasDiacritics(text) || extractor.HasLegalSuffix(text)
}

// sanitizeTokens drops tokens with non-finite geometry and clamps
// confidences into [0,1].
func sanitizeTokens(res *domain.BackendResult) []domain.Token {
	if res == nil {
		return nil
	}
	out := make([]domain.Token, 0, len(res.Tokens))
	for _, t := range res.Tokens {
		b := t.Box
		if !isFinite(b.X) || !isFinite(b.Y) || !isFinite(b.W) || !isFinite(b.H) {
			continue
		}
		t.Confidence = clamp(finite(t.Confidence), 0, 1)
		out = append(out, t)
	}
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finite(f float64) float64 {
	if !isFinite(f) {
		return 0
	}
	return f
}

func nonNegative(f float64) float64 {
	if !isFinite(f) || f < 0 {
		return 0
	}
	return f
}

func clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}
