package invoice

import (
	"time"

	"docscan/internal/domain"
)

// Reason codes carried by ValidationOutcome.Reason.
const (
	ReasonOK               = "ok"
	ReasonMalformed        = "malformed"
	ReasonChecksumMismatch = "checksum_mismatch"
	ReasonNotAllowed       = "not_allowed"
	ReasonInFuture         = "in_future"
	ReasonBeforeIssue      = "before_issue"
	ReasonNegative         = "negative"
	ReasonSumMismatch      = "sum_mismatch"
	ReasonInternalError    = "internal_error"
)

// Context is what a rule may consult besides the field it validates: the
// other extracted fields and the processing date.
type Context struct {
	Now    time.Time
	fields map[domain.FieldName]domain.CandidateField
}

// NewContext indexes fields by name. The first field of each name wins.
func NewContext(fields []domain.CandidateField, now time.Time) *Context {
	m := make(map[domain.FieldName]domain.CandidateField, len(fields))
	for _, f := range fields {
		if _, ok := m[f.Name]; !ok {
			m[f.Name] = f
		}
	}
	return &Context{Now: now, fields: m}
}

// Value returns the normalized value of another field.
func (c *Context) Value(name domain.FieldName) (string, bool) {
	if c == nil {
		return "", false
	}
	f, ok := c.fields[name]
	if !ok || f.NormalizedValue == "" {
		return "", false
	}
	return f.NormalizedValue, true
}

// Today is the processing date formatted as YYYY-MM-DD.
func (c *Context) Today() string {
	return c.Now.Format(dateLayout)
}

const dateLayout = "2006-01-02"

func outcome(rule string, passed bool, reason string) domain.ValidationOutcome {
	if passed {
		reason = ReasonOK
	}
	return domain.ValidationOutcome{Rule: rule, Passed: passed, Reason: reason}
}

func appliesTo(fields []domain.FieldName, name domain.FieldName) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
