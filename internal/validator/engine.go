package validator

import (
	"fmt"
	"log/slog"
	"time"

	"docscan/internal/domain"
	"docscan/internal/validator/invoice"
)

// Engine applies registered rules to extracted fields.
type Engine struct {
	registry *Registry
	now      func() time.Time
	log      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the source of the processing date.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger used for rule failures.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates a new validation engine.
func NewEngine(registry *Registry, opts ...Option) *Engine {
	e := &Engine{registry: registry, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate returns a copy of fields with the outcome of every applicable
// rule attached. The input slice is not modified.
func (e *Engine) Validate(fields []domain.CandidateField) []domain.CandidateField {
	c := invoice.NewContext(fields, e.now())
	out := make([]domain.CandidateField, len(fields))
	for i := range fields {
		f := fields[i]
		f.Validations = e.ValidateField(&f, c)
		out[i] = f
	}
	return out
}

// ValidateField runs the rules that apply to one field. A rule that panics
// yields a failing outcome instead.
func (e *Engine) ValidateField(f *domain.CandidateField, c *invoice.Context) []domain.ValidationOutcome {
	var outcomes []domain.ValidationOutcome
	for _, v := range e.registry.All() {
		if !v.AppliesTo(f.Name) {
			continue
		}
		outcomes = append(outcomes, e.run(v, f, c)...)
	}
	return outcomes
}

func (e *Engine) run(v Validator, f *domain.CandidateField, c *invoice.Context) (out []domain.ValidationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("validator.Engine: rule panicked",
				"rule", v.RuleKey(),
				"field", f.Name,
				"panic", fmt.Sprint(r),
			)
			out = []domain.ValidationOutcome{{Rule: v.RuleKey(), Passed: false, Reason: invoice.ReasonInternalError}}
		}
	}()
	return v.Validate(f, c)
}
