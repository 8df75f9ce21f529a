package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"docscan/internal/domain"
)

// logicalValidator checks a field against the processing date or another
// field. Rules with a missing operand produce no outcome.
type logicalValidator struct {
	ruleKey  string
	ruleName string
	fields   []domain.FieldName
	validate func(*domain.CandidateField, *Context) []domain.ValidationOutcome
}

func (v *logicalValidator) RuleKey() string                      { return v.ruleKey }
func (v *logicalValidator) RuleName() string                     { return v.ruleName }
func (v *logicalValidator) AppliesTo(name domain.FieldName) bool { return appliesTo(v.fields, name) }

func (v *logicalValidator) Validate(f *domain.CandidateField, c *Context) []domain.ValidationOutcome {
	return v.validate(f, c)
}

func parseISO(s string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, s)
	return t, err == nil
}

// LogicalValidators returns all logical validators.
func LogicalValidators() []*logicalValidator {
	return []*logicalValidator{
		{
			ruleKey: "date.not_future", ruleName: "Logical: Issue Date Not in Future",
			fields:   []domain.FieldName{domain.FieldIssueDate},
			validate: func(f *domain.CandidateField, c *Context) []domain.ValidationOutcome {
				const rule = "date.not_future"
				issued, ok := parseISO(f.NormalizedValue)
				if !ok {
					return []domain.ValidationOutcome{outcome(rule, false, ReasonMalformed)}
				}
				today, _ := parseISO(c.Today())
				return []domain.ValidationOutcome{outcome(rule, !issued.After(today), ReasonInFuture)}
			},
		},
		{
			ruleKey: "date.not_before_issue", ruleName: "Logical: Date Not Before Issue Date",
			fields:   []domain.FieldName{domain.FieldSaleDate, domain.FieldDueDate},
			validate: func(f *domain.CandidateField, c *Context) []domain.ValidationOutcome {
				const rule = "date.not_before_issue"
				raw, ok := c.Value(domain.FieldIssueDate)
				if !ok {
					return nil
				}
				issued, ok := parseISO(raw)
				if !ok {
					return nil
				}
				d, ok := parseISO(f.NormalizedValue)
				if !ok {
					return []domain.ValidationOutcome{outcome(rule, false, ReasonMalformed)}
				}
				return []domain.ValidationOutcome{outcome(rule, !d.Before(issued), ReasonBeforeIssue)}
			},
		},
		{
			ruleKey: "amount.non_negative", ruleName: "Logical: Non-Negative Amount",
			fields:   []domain.FieldName{domain.FieldNetTotal, domain.FieldVATTotal, domain.FieldGrossTotal},
			validate: func(f *domain.CandidateField, _ *Context) []domain.ValidationOutcome {
				const rule = "amount.non_negative"
				v, err := decimal.NewFromString(f.NormalizedValue)
				if err != nil {
					return []domain.ValidationOutcome{outcome(rule, false, ReasonMalformed)}
				}
				return []domain.ValidationOutcome{outcome(rule, !v.IsNegative(), ReasonNegative)}
			},
		},
	}
}
