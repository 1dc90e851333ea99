// Package advisory wraps the optional natural-language service consulted for
// qualitative retry and correction judgment. Every call either returns a
// value conforming to the requested schema or an error; callers fall back to
// deterministic heuristics on any error.
package advisory

import (
	"context"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
)

// RetryRequest summarizes the state the advisor judges a retry from.
type RetryRequest struct {
	Attempt          int                   `json:"attempt"`
	MaxAttempts      int                   `json:"maxAttempts"`
	Issues           []api.ValidationIssue `json:"issues"`
	IssuesFixed      int                   `json:"issuesFixed"`
	NewIssues        int                   `json:"newIssues"`
	PersistentIssues int                   `json:"persistentIssues"`
	MakingProgress   bool                  `json:"makingProgress"`
	NoProgress       bool                  `json:"noProgress"`
}

// RetryRecommendation is the required output schema of a retry consultation.
type RetryRecommendation struct {
	ShouldRetry      bool     `json:"shouldRetry"`
	Strategy         string   `json:"strategy"`
	Approach         string   `json:"approach"`
	Reasoning        string   `json:"reasoning"`
	AskUser          bool     `json:"askUser"`
	QuestionsForUser []string `json:"questionsForUser"`
	Message          string   `json:"message"`
}

// Retry strategies.
const (
	StrategyRetry   = "retry"
	StrategyAskUser = "ask-user"
	StrategyStop    = "stop"

	ApproachGeneric         = "generic_retry"
	ApproachFocusOnMetadata = "focus_on_metadata"
)

// CorrectionSuggestion is one advisory suggestion for a validation issue.
// Actionable suggestions name a metadata field and a value the coordinator
// can apply without user involvement.
type CorrectionSuggestion struct {
	CheckName      string `json:"checkName"`
	Field          string `json:"field"`
	SuggestedValue string `json:"suggestedValue"`
	Actionable     bool   `json:"actionable"`
	Explanation    string `json:"explanation"`
}

// CorrectionAnalysis is the required output schema of a correction
// consultation.
type CorrectionAnalysis struct {
	Analysis    string                 `json:"analysis"`
	Suggestions []CorrectionSuggestion `json:"suggestions"`
}

// Advisor is the boundary to the natural-language service. Implementations
// must never return a non-conforming shape silently.
type Advisor interface {
	RecommendRetry(ctx context.Context, req RetryRequest) (RetryRecommendation, error)
	AnalyzeCorrections(ctx context.Context, result api.ValidationResult, metadata map[string]any) (CorrectionAnalysis, error)
}
