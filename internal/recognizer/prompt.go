package recognizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"docscan/internal/domain"
	"docscan/internal/layout"
)

// TokenPrompt asks a vision model for word-level transcription with boxes.
// The model must transcribe, not interpret: no field extraction happens here.
const TokenPrompt = `You are an optical character recognition engine. Transcribe every word visible in the provided document exactly as printed, including Polish diacritics, punctuation and digits. Do not correct, translate, summarize or reorder anything.

Return ONLY valid JSON with no markdown formatting and no explanation, using this schema:
{
  "tokens": [
    {"text": "", "page": 0, "bbox": [x, y, width, height], "confidence": 0.0}
  ]
}

Rules:
- One entry per word (a run of characters without spaces).
- "bbox" uses coordinates normalized to the page: x and width divided by page width, y and height divided by page height, origin at the top-left corner. All values between 0 and 1.
- "page" is the zero-based page index.
- "confidence" is your certainty in the transcription of that word, between 0 and 1.
- List tokens in reading order.`

type tokenPayload struct {
	Tokens []struct {
		Text       string    `json:"text"`
		Page       int       `json:"page"`
		BBox       []float64 `json:"bbox"`
		Confidence *float64  `json:"confidence"`
	} `json:"tokens"`
}

// ParseTokenJSON converts a model's token JSON into a backend result. Code
// fences around the JSON are tolerated.
func ParseTokenJSON(text string) (*domain.BackendResult, error) {
	raw := strings.TrimSpace(text)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var payload tokenPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return nil, fmt.Errorf("parsing token JSON: %w (raw: %s)", err, Truncate(text, 200))
	}

	tokens := make([]domain.Token, 0, len(payload.Tokens))
	for _, t := range payload.Tokens {
		if strings.TrimSpace(t.Text) == "" || len(t.BBox) != 4 {
			continue
		}
		conf := 0.5
		if t.Confidence != nil {
			conf = *t.Confidence
		}
		tokens = append(tokens, domain.Token{
			Text: strings.TrimSpace(t.Text),
			Box: domain.BBox{
				Page: t.Page,
				X:    clamp01(t.BBox[0]),
				Y:    clamp01(t.BBox[1]),
				W:    clamp01(t.BBox[2]),
				H:    clamp01(t.BBox[3]),
			},
			Confidence: clamp01(conf),
		})
	}
	return &domain.BackendResult{Text: layout.Text(tokens), Tokens: tokens}, nil
}
