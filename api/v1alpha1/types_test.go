package v1alpha1

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIssueIdentity(t *testing.T) {
	a := ValidationIssue{CheckName: "metadata_subject", Message: "subject_id missing", Severity: SeverityError}
	b := ValidationIssue{CheckName: "metadata_subject", Message: "subject_id missing", Severity: SeverityWarning}
	c := ValidationIssue{CheckName: "metadata_subject", Message: "subject_id malformed"}

	assert.Equal(t, a.Identity(), b.Identity(), "severity is not part of the identity")
	assert.NotEqual(t, a.Identity(), c.Identity())
}

func TestBlockingIssues(t *testing.T) {
	r := ValidationResult{Issues: []ValidationIssue{
		{CheckName: "a", Severity: SeverityCritical},
		{CheckName: "b", Severity: SeverityError},
		{CheckName: "c", Severity: SeverityWarning},
		{CheckName: "d", Severity: SeverityInfo},
	}}

	blocking := r.BlockingIssues()
	assert.Len(t, blocking, 2)
	for _, issue := range blocking {
		assert.Contains(t, []string{"a", "b"}, issue.CheckName)
	}
}

func TestStringToValidationOverallStatus(t *testing.T) {
	assert.Equal(t, ValidationPassed, StringToValidationOverallStatus("PASSED"))
	assert.Equal(t, ValidationPassedWithIssues, StringToValidationOverallStatus("PASSED_WITH_ISSUES"))
	assert.Equal(t, ValidationFailed, StringToValidationOverallStatus("FAILED"))
	assert.Equal(t, ValidationFailed, StringToValidationOverallStatus("garbage"))
}
