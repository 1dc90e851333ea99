// Package v1alpha1 holds the wire types shared between the orchestration
// core and its external collaborators (conversion engine, validation engine,
// event consumers).
package v1alpha1

// Envelope is the unit of work handed to the message router. TargetGroup and
// Operation select the handler; Context carries operation parameters.
type Envelope struct {
	TargetGroup string         `json:"targetGroup"`
	Operation   string         `json:"operation"`
	Context     map[string]any `json:"context,omitempty"`
	MessageID   string         `json:"messageId"`
	ReplyTo     string         `json:"replyTo,omitempty"`
}

// Response is the structured result of a dispatch. Exactly one of Result or
// Error is populated.
type Response struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *Error         `json:"error,omitempty"`
}

// Error carries a machine-readable code alongside the human-readable message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Context any    `json:"context,omitempty"`
}

type ValidationOverallStatus string

const (
	ValidationPassed           ValidationOverallStatus = "PASSED"
	ValidationPassedWithIssues ValidationOverallStatus = "PASSED_WITH_ISSUES"
	ValidationFailed           ValidationOverallStatus = "FAILED"
)

func StringToValidationOverallStatus(s string) ValidationOverallStatus {
	switch s {
	case string(ValidationPassed):
		return ValidationPassed
	case string(ValidationPassedWithIssues):
		return ValidationPassedWithIssues
	default:
		return ValidationFailed
	}
}

type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityError    IssueSeverity = "error"
	SeverityWarning  IssueSeverity = "warning"
	SeverityInfo     IssueSeverity = "info"
)

// ValidationIssue is a single finding reported by the validation engine.
type ValidationIssue struct {
	Severity  IssueSeverity `json:"severity"`
	Message   string        `json:"message"`
	Location  string        `json:"location,omitempty"`
	CheckName string        `json:"checkName"`
}

// Identity returns the stable per-issue identity used when comparing issue
// sets across correction attempts.
func (i ValidationIssue) Identity() string {
	return i.CheckName + ":" + i.Message
}

// ValidationResult is the verdict returned by the validation engine for one
// converted artifact.
type ValidationResult struct {
	OverallStatus ValidationOverallStatus `json:"overallStatus"`
	Issues        []ValidationIssue       `json:"issues"`
	Summary       map[string]int          `json:"summary,omitempty"`
}

// BlockingIssues returns the issues that prevent acceptance (critical/error).
func (r ValidationResult) BlockingIssues() []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical || issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

// ConversionResult is returned by the conversion engine on success.
type ConversionResult struct {
	OutputPath string `json:"outputPath"`
	Checksum   string `json:"checksum"`
}
