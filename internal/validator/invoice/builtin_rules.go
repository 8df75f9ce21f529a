package invoice

import (
	"docscan/internal/domain"
)

// BuiltinValidator wraps a rule and its metadata for the registry.
type BuiltinValidator struct {
	key     string
	name    string
	applies func(domain.FieldName) bool
	fn      func(*domain.CandidateField, *Context) []domain.ValidationOutcome
}

func (b *BuiltinValidator) Validate(f *domain.CandidateField, c *Context) []domain.ValidationOutcome {
	return b.fn(f, c)
}
func (b *BuiltinValidator) RuleKey() string                      { return b.key }
func (b *BuiltinValidator) RuleName() string                     { return b.name }
func (b *BuiltinValidator) AppliesTo(name domain.FieldName) bool { return b.applies(name) }

type rule interface {
	RuleKey() string
	RuleName() string
	AppliesTo(domain.FieldName) bool
	Validate(*domain.CandidateField, *Context) []domain.ValidationOutcome
}

func wrap(v rule) *BuiltinValidator {
	return &BuiltinValidator{key: v.RuleKey(), name: v.RuleName(), applies: v.AppliesTo, fn: v.Validate}
}

// AllBuiltinValidators returns all built-in invoice validators.
func AllBuiltinValidators() []*BuiltinValidator {
	fmtVals := FormatValidators()
	logVals := LogicalValidators()
	mathVals := MathValidators()
	all := make([]*BuiltinValidator, 0, len(fmtVals)+len(logVals)+len(mathVals))

	for _, v := range fmtVals {
		all = append(all, wrap(v))
	}
	for _, v := range logVals {
		all = append(all, wrap(v))
	}
	for _, v := range mathVals {
		all = append(all, wrap(v))
	}
	return all
}
