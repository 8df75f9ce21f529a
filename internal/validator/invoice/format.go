package invoice

import (
	"fmt"
	"time"

	"docscan/internal/domain"
)

// AllowedVATRates is the set of Polish VAT rates plus the exempt ("zw") and
// not-applicable ("np") markers.
var AllowedVATRates = map[string]bool{
	"23": true, "8": true, "5": true, "0": true, "zw": true, "np": true,
}

// formatValidator checks a single field value against a format or checksum.
type formatValidator struct {
	ruleKey  string
	ruleName string
	fields   []domain.FieldName
	validate func(*domain.CandidateField, *Context) []domain.ValidationOutcome
}

func (v *formatValidator) RuleKey() string                      { return v.ruleKey }
func (v *formatValidator) RuleName() string                     { return v.ruleName }
func (v *formatValidator) AppliesTo(name domain.FieldName) bool { return appliesTo(v.fields, name) }

func (v *formatValidator) Validate(f *domain.CandidateField, c *Context) []domain.ValidationOutcome {
	return v.validate(f, c)
}

func checkWith(rule string, check func(string) (bool, string)) func(*domain.CandidateField, *Context) []domain.ValidationOutcome {
	return func(f *domain.CandidateField, _ *Context) []domain.ValidationOutcome {
		passed, reason := check(f.NormalizedValue)
		return []domain.ValidationOutcome{outcome(rule, passed, reason)}
	}
}

func checkVATRate(rate string) (bool, string) {
	if rate == "" {
		return false, ReasonMalformed
	}
	if !AllowedVATRates[rate] {
		return false, ReasonNotAllowed
	}
	return true, ReasonOK
}

func checkDate(s string) (bool, string) {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return false, ReasonMalformed
	}
	return true, ReasonOK
}

// FormatValidators returns all format and checksum validators.
func FormatValidators() []*formatValidator {
	return []*formatValidator{
		{
			ruleKey: "tax_id.checksum", ruleName: "Format: NIP Checksum",
			fields:   []domain.FieldName{domain.FieldSellerTaxID, domain.FieldBuyerTaxID},
			validate: checkWith("tax_id.checksum", CheckNIP),
		},
		{
			ruleKey: "regon.checksum", ruleName: "Format: REGON Checksum",
			fields:   []domain.FieldName{domain.FieldSellerRegon, domain.FieldBuyerRegon},
			validate: checkWith("regon.checksum", CheckREGON),
		},
		{
			ruleKey: "bank_account.iban", ruleName: "Format: IBAN Check Digits",
			fields:   []domain.FieldName{domain.FieldBankAccount},
			validate: checkWith("bank_account.iban", CheckIBAN),
		},
		{
			ruleKey: "date.format", ruleName: "Format: ISO Date",
			fields:   []domain.FieldName{domain.FieldIssueDate, domain.FieldSaleDate, domain.FieldDueDate},
			validate: checkWith("date.format", checkDate),
		},
		{
			ruleKey: "vat_rate.allowed", ruleName: "Format: Legal VAT Rate",
			fields:   []domain.FieldName{domain.FieldVATRate, domain.FieldLineItems},
			validate: func(f *domain.CandidateField, _ *Context) []domain.ValidationOutcome {
				const rule = "vat_rate.allowed"
				if f.Name != domain.FieldLineItems {
					passed, reason := checkVATRate(f.NormalizedValue)
					return []domain.ValidationOutcome{outcome(rule, passed, reason)}
				}
				var out []domain.ValidationOutcome
				for i, item := range f.Items {
					if item.VATRate == "" {
						continue
					}
					passed, reason := checkVATRate(item.VATRate)
					if !passed {
						reason = fmt.Sprintf("item %d: %s", i+1, reason)
					}
					out = append(out, outcome(rule, passed, reason))
				}
				return out
			},
		},
	}
}
