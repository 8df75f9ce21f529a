package validator

import (
	"docscan/internal/domain"
	"docscan/internal/validator/invoice"
)

// Validator is the interface for a single built-in validation rule.
type Validator interface {
	Validate(field *domain.CandidateField, c *invoice.Context) []domain.ValidationOutcome
	RuleKey() string
	RuleName() string
	AppliesTo(name domain.FieldName) bool
}
