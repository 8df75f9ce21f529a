package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Document is the payload handed to the pipeline. Immutable once received.
type Document struct {
	ID        uuid.UUID
	MediaType string
	Data      []byte
}

// ProcessingRequest describes one pipeline run. It is never mutated after
// construction; reruns build a new request.
type ProcessingRequest struct {
	Document       Document
	Backends       []string
	Mode           RecognitionMode
	BackendTimeout time.Duration
	Deadline       time.Duration
	MinConfidence  float64
}

// Page is the unit of work passed to recognition backends: encoded bytes plus
// the pixel dimensions when the payload is a raster image.
type Page struct {
	MediaType string
	Data      []byte
	Width     int
	Height    int
}

// IsRaster reports whether the page holds a decodable image.
func (p *Page) IsRaster() bool {
	return strings.HasPrefix(p.MediaType, "image/")
}

// BBox is a bounding box in normalized page coordinates (0..1).
type BBox struct {
	Page int     `json:"page"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
}

// Center returns the center point of the box.
func (b BBox) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

func (b BBox) Right() float64  { return b.X + b.W }
func (b BBox) Bottom() float64 { return b.Y + b.H }

// Area returns the box area, zero for degenerate boxes.
func (b BBox) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// IoU returns the intersection-over-union of two boxes on the same page.
func (b BBox) IoU(o BBox) float64 {
	if b.Page != o.Page {
		return 0
	}
	ix := math.Min(b.Right(), o.Right()) - math.Max(b.X, o.X)
	iy := math.Min(b.Bottom(), o.Bottom()) - math.Max(b.Y, o.Y)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Union returns the smallest box covering both boxes.
func (b BBox) Union(o BBox) BBox {
	if b.Area() == 0 {
		return o
	}
	if o.Area() == 0 {
		return b
	}
	x := math.Min(b.X, o.X)
	y := math.Min(b.Y, o.Y)
	return BBox{
		Page: b.Page,
		X:    x,
		Y:    y,
		W:    math.Max(b.Right(), o.Right()) - x,
		H:    math.Max(b.Bottom(), o.Bottom()) - y,
	}
}

// Distance is the Euclidean distance between the centers of two boxes.
func (b BBox) Distance(o BBox) float64 {
	bx, by := b.Center()
	ox, oy := o.Center()
	return math.Hypot(bx-ox, by-oy)
}

// Token is a recognized word with its position and confidence (0..1).
type Token struct {
	Text       string  `json:"text"`
	Box        BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// BackendResult is the output of one backend invocation. Failed invocations
// still produce a result so that they can be audited.
type BackendResult struct {
	Backend  string
	Text     string
	Tokens   []Token
	Duration time.Duration
	Err      *RecognitionError
}

// Failed reports whether the invocation ended in an error.
func (r *BackendResult) Failed() bool {
	return r == nil || r.Err != nil
}

// Usable reports whether the result carries any recognized text.
func (r *BackendResult) Usable() bool {
	if r.Failed() {
		return false
	}
	return strings.TrimSpace(r.Text) != "" || len(r.Tokens) > 0
}

// MeanConfidence is the average token confidence, 0 when there are no tokens.
func (r *BackendResult) MeanConfidence() float64 {
	if r == nil || len(r.Tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range r.Tokens {
		sum += t.Confidence
	}
	return sum / float64(len(r.Tokens))
}

// LineItem is one row of the invoice position table.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitNet     decimal.Decimal `json:"unit_net"`
	VATRate     string          `json:"vat_rate"`
	Net         decimal.Decimal `json:"net"`
	Gross       decimal.Decimal `json:"gross"`
	Box         BBox            `json:"bbox"`
}

// CandidateField is an extracted invoice field with its validation outcomes.
type CandidateField struct {
	Name            FieldName           `json:"name"`
	RawValue        string              `json:"raw_value"`
	NormalizedValue string              `json:"normalized_value"`
	Items           []LineItem          `json:"items,omitempty"`
	Confidence      float64             `json:"confidence"`
	Box             BBox                `json:"bbox"`
	Validations     []ValidationOutcome `json:"validations"`
}

// Passed reports whether every validation outcome attached to the field passed.
func (f *CandidateField) Passed() bool {
	for _, v := range f.Validations {
		if !v.Passed {
			return false
		}
	}
	return true
}

// ValidationOutcome is the result of one business rule applied to one field.
type ValidationOutcome struct {
	Rule   string `json:"rule"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// ConfidenceBreakdown holds the named contributions, in points, that sum to Score.
type ConfidenceBreakdown struct {
	Backend    float64 `json:"backend"`
	Extraction float64 `json:"extraction"`
	Validation float64 `json:"validation"`
	Spatial    float64 `json:"spatial"`
	Locale     float64 `json:"locale"`
	Score      float64 `json:"score"`
}

// Attempt is one entry of the fallback chain. It never carries document content.
type Attempt struct {
	Backend        string    `json:"backend"`
	Set            int       `json:"set"`
	Degraded       bool      `json:"degraded"`
	StartedAt      time.Time `json:"started_at"`
	DurationMS     int64     `json:"duration_ms"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	Error          string    `json:"error,omitempty"`
	MeanConfidence float64   `json:"mean_confidence"`
	Tokens         int       `json:"tokens"`
}

// Succeeded reports whether the attempt produced a result.
func (a Attempt) Succeeded() bool {
	return a.ErrorKind == ""
}

// ProcessingOutcome is the final record of a pipeline run.
type ProcessingOutcome struct {
	DocumentID      uuid.UUID           `json:"document_id"`
	Status          ProcessingStatus    `json:"status"`
	Fields          []CandidateField    `json:"fields"`
	Breakdown       ConfidenceBreakdown `json:"confidence"`
	FallbackChain   []Attempt           `json:"fallback_chain"`
	AcceptedBackend string              `json:"accepted_backend,omitempty"`
	ElapsedMS       int64               `json:"elapsed_ms"`
	ProcessedAt     time.Time           `json:"processed_at"`
}

// Field returns the first field with the given name.
func (o *ProcessingOutcome) Field(name FieldName) (CandidateField, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return CandidateField{}, false
}

// AttemptRecord is the persisted form of an Attempt.
type AttemptRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	DocumentID     uuid.UUID `db:"document_id" json:"document_id"`
	Seq            int       `db:"seq" json:"seq"`
	Backend        string    `db:"backend" json:"backend"`
	BackendSet     int       `db:"backend_set" json:"backend_set"`
	Degraded       bool      `db:"degraded" json:"degraded"`
	ErrorKind      string    `db:"error_kind" json:"error_kind,omitempty"`
	ErrorMessage   string    `db:"error_message" json:"error,omitempty"`
	DurationMS     int64     `db:"duration_ms" json:"duration_ms"`
	MeanConfidence float64   `db:"mean_confidence" json:"mean_confidence"`
	TokenCount     int       `db:"token_count" json:"tokens"`
	StartedAt      time.Time `db:"started_at" json:"started_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
