package invoice

import (
	"github.com/shopspring/decimal"

	"docscan/internal/domain"
)

var mathTolerance = decimal.RequireFromString("0.01")

// mathValidator checks arithmetic relationships between amounts.
type mathValidator struct {
	ruleKey  string
	ruleName string
	fields   []domain.FieldName
	validate func(*domain.CandidateField, *Context) []domain.ValidationOutcome
}

func (v *mathValidator) RuleKey() string                      { return v.ruleKey }
func (v *mathValidator) RuleName() string                     { return v.ruleName }
func (v *mathValidator) AppliesTo(name domain.FieldName) bool { return appliesTo(v.fields, name) }

func (v *mathValidator) Validate(f *domain.CandidateField, c *Context) []domain.ValidationOutcome {
	return v.validate(f, c)
}

func approxEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(mathTolerance)
}

func amountOf(c *Context, name domain.FieldName) (decimal.Decimal, bool) {
	raw, ok := c.Value(name)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	return d, err == nil
}

// MathValidators returns all arithmetic validators.
func MathValidators() []*mathValidator {
	return []*mathValidator{
		{
			ruleKey: "totals.gross_equals_net_plus_vat", ruleName: "Math: Gross Equals Net Plus VAT",
			fields:   []domain.FieldName{domain.FieldGrossTotal},
			validate: func(f *domain.CandidateField, c *Context) []domain.ValidationOutcome {
				const rule = "totals.gross_equals_net_plus_vat"
				net, okNet := amountOf(c, domain.FieldNetTotal)
				vat, okVAT := amountOf(c, domain.FieldVATTotal)
				if !okNet || !okVAT {
					return nil
				}
				gross, err := decimal.NewFromString(f.NormalizedValue)
				if err != nil {
					return []domain.ValidationOutcome{outcome(rule, false, ReasonMalformed)}
				}
				return []domain.ValidationOutcome{outcome(rule, approxEqual(gross, net.Add(vat)), ReasonSumMismatch)}
			},
		},
		{
			ruleKey: "line_items.sum_matches_net", ruleName: "Math: Line Items Sum to Net Total",
			fields:   []domain.FieldName{domain.FieldLineItems},
			validate: func(f *domain.CandidateField, c *Context) []domain.ValidationOutcome {
				const rule = "line_items.sum_matches_net"
				net, ok := amountOf(c, domain.FieldNetTotal)
				if !ok || len(f.Items) == 0 {
					return nil
				}
				sum := decimal.Zero
				for _, item := range f.Items {
					sum = sum.Add(item.Net)
				}
				return []domain.ValidationOutcome{outcome(rule, approxEqual(sum, net), ReasonSumMismatch)}
			},
		},
	}
}
