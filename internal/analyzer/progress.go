package analyzer

import (
	"strings"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
)

// Progress classifies how the current issue set relates to the previous one.
type Progress struct {
	Fixed      []api.ValidationIssue
	New        []api.ValidationIssue
	Persistent []api.ValidationIssue
}

// MakingProgress is the default predicate: something got fixed and nothing
// new broke. Policy may override it.
func (p Progress) MakingProgress() bool {
	return len(p.Fixed) > 0 && len(p.New) == 0
}

// Classify compares issue sets by per-issue identity.
func Classify(current, previous []api.ValidationIssue) Progress {
	currentByID := make(map[string]api.ValidationIssue, len(current))
	for _, issue := range current {
		currentByID[issue.Identity()] = issue
	}
	previousByID := make(map[string]api.ValidationIssue, len(previous))
	for _, issue := range previous {
		previousByID[issue.Identity()] = issue
	}

	var p Progress
	for id, issue := range previousByID {
		if _, still := currentByID[id]; !still {
			p.Fixed = append(p.Fixed, issue)
		}
	}
	for id, issue := range currentByID {
		if _, was := previousByID[id]; was {
			p.Persistent = append(p.Persistent, issue)
		} else {
			p.New = append(p.New, issue)
		}
	}
	return p
}

// missingMetadataDominated reports whether more than half of the issues look
// like missing-metadata complaints.
func missingMetadataDominated(issues []api.ValidationIssue) bool {
	if len(issues) == 0 {
		return false
	}
	count := 0
	for _, issue := range issues {
		msg := strings.ToLower(issue.Message)
		if strings.Contains(msg, "missing") || strings.Contains(msg, "required field") ||
			strings.HasPrefix(strings.ToLower(issue.CheckName), "metadata") {
			count++
		}
	}
	return count*2 > len(issues)
}
