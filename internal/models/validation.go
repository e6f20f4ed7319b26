package models

import "time"

// IssueSeverity splits validation findings into blocking errors and
// advisory warnings.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ValidationIssue is one finding from a schema, quality or cross-source check.
type ValidationIssue struct {
	Field    string        `json:"field,omitempty"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Severity IssueSeverity `json:"severity"`
}

// ValidationReport is the outcome of validating one record. Valid is false
// when any issue carries SeverityError; warnings alone pass the record
// through with annotations.
type ValidationReport struct {
	RecordID  string            `json:"record_id,omitempty"`
	Source    string            `json:"source,omitempty"`
	Valid     bool              `json:"valid"`
	Issues    []ValidationIssue `json:"issues,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Errors returns only the blocking issues.
func (r *ValidationReport) Errors() []ValidationIssue {
	var out []ValidationIssue
	for _, iss := range r.Issues {
		if iss.Severity == SeverityError {
			out = append(out, iss)
		}
	}
	return out
}

// Warnings returns only the advisory issues.
func (r *ValidationReport) Warnings() []ValidationIssue {
	var out []ValidationIssue
	for _, iss := range r.Issues {
		if iss.Severity == SeverityWarning {
			out = append(out, iss)
		}
	}
	return out
}
