package validator

import (
	"docscan/internal/domain"
)

// FieldValidationStatus summarizes the validation state of one field.
type FieldValidationStatus string

const (
	FieldStatusValid     FieldValidationStatus = "valid"
	FieldStatusInvalid   FieldValidationStatus = "invalid"
	FieldStatusUnchecked FieldValidationStatus = "unchecked"
)

// FieldStatus represents the computed validation state for a single field.
type FieldStatus struct {
	Status   FieldValidationStatus `json:"status"`
	Messages []string              `json:"messages"`
}

// ComputeFieldStatuses derives per-field statuses from attached outcomes.
// Failing outcomes contribute "rule: reason" messages.
func ComputeFieldStatuses(fields []domain.CandidateField) map[domain.FieldName]*FieldStatus {
	statuses := make(map[domain.FieldName]*FieldStatus, len(fields))
	for _, f := range fields {
		fs := &FieldStatus{Status: FieldStatusUnchecked, Messages: []string{}}
		if len(f.Validations) > 0 {
			fs.Status = FieldStatusValid
		}
		for _, v := range f.Validations {
			if !v.Passed {
				fs.Status = FieldStatusInvalid
				fs.Messages = append(fs.Messages, v.Rule+": "+v.Reason)
			}
		}
		statuses[f.Name] = fs
	}
	return statuses
}

// PassCounts returns the number of passed outcomes and the number of
// outcomes over fields that had at least one rule.
func PassCounts(fields []domain.CandidateField) (passed, total int) {
	for _, f := range fields {
		for _, v := range f.Validations {
			total++
			if v.Passed {
				passed++
			}
		}
	}
	return passed, total
}
