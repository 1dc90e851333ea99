package session

import (
	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
)

// BeginAttempt resets the per-attempt flags and records the issue set the
// attempt is trying to fix. Called at the start of every retry attempt.
func (s *Session) BeginAttempt(previousIssues []api.ValidationIssue) {
	s.previousValidationIssues = previousIssues
	s.userProvidedInput = false
	s.autoCorrectionsApplied = false
	s.Append(LevelDebug, "per-attempt flags reset", map[string]any{
		"previousIssues": len(previousIssues),
	})
}

func (s *Session) PreviousValidationIssues() []api.ValidationIssue {
	return s.previousValidationIssues
}

func (s *Session) UserProvidedInputThisAttempt() bool { return s.userProvidedInput }
func (s *Session) AutoCorrectionsThisAttempt() bool   { return s.autoCorrectionsApplied }

// DetectNoProgress reports whether the current issue set is identical to the
// previous one and nothing was changed this attempt. Identity is per-issue
// (check name + message), order-insensitive.
func (s *Session) DetectNoProgress(currentIssues []api.ValidationIssue) bool {
	if s.userProvidedInput || s.autoCorrectionsApplied {
		return false
	}
	return sameIssueSet(currentIssues, s.previousValidationIssues)
}

func sameIssueSet(a, b []api.ValidationIssue) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, issue := range a {
		seen[issue.Identity()]++
	}
	for _, issue := range b {
		seen[issue.Identity()]--
		if seen[issue.Identity()] < 0 {
			return false
		}
	}
	return true
}
