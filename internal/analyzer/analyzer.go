// Package analyzer decides, after a failed validation, whether to retry
// automatically, ask the user for missing information, or give up. The
// optional NL advisory supplies qualitative judgment; a deterministic
// heuristic always stands behind it.
package analyzer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/advisory"
	"github.com/archivekit/conversion-assistant/internal/session"
	"github.com/archivekit/conversion-assistant/pkg/metrics"
)

type Analyzer struct {
	advisor     advisory.Advisor
	maxAttempts int
	log         *zap.SugaredLogger
}

// New creates an analyzer. advisor may be nil, in which case only the
// heuristic path runs.
func New(advisor advisory.Advisor, maxAttempts int) *Analyzer {
	return &Analyzer{
		advisor:     advisor,
		maxAttempts: maxAttempts,
		log:         zap.S().Named("analyzer"),
	}
}

// AnalyzeAndRecommend produces a retry recommendation for the current
// validation outcome. The returned recommendation always carries non-empty
// reasoning and a user-displayable message.
func (a *Analyzer) AnalyzeAndRecommend(ctx context.Context, state *session.Session, current api.ValidationResult) advisory.RetryRecommendation {
	attempt := state.CorrectionAttempt()

	// The coordinator rejects approvals once the cap is reached, so a
	// conforming caller never trips this. Kept as a hard stop for direct
	// callers: no external calls are made past the cap.
	if attempt > a.maxAttempts {
		return advisory.RetryRecommendation{
			ShouldRetry: false,
			Strategy:    advisory.StrategyStop,
			Reasoning:   fmt.Sprintf("correction attempt limit exceeded (%d of %d)", attempt, a.maxAttempts),
			Message:     fmt.Sprintf("The maximum of %d correction attempts has been reached.", a.maxAttempts),
		}
	}

	progress := Classify(current.Issues, state.PreviousValidationIssues())
	noProgress := state.DetectNoProgress(current.Issues)

	if a.advisor != nil {
		req := advisory.RetryRequest{
			Attempt:          attempt,
			MaxAttempts:      a.maxAttempts,
			Issues:           current.Issues,
			IssuesFixed:      len(progress.Fixed),
			NewIssues:        len(progress.New),
			PersistentIssues: len(progress.Persistent),
			MakingProgress:   progress.MakingProgress(),
			NoProgress:       noProgress,
		}
		rec, err := a.advisor.RecommendRetry(ctx, req)
		if err == nil {
			a.log.Infow("advisory recommendation",
				"strategy", rec.Strategy, "shouldRetry", rec.ShouldRetry, "askUser", rec.AskUser)
			return rec
		}
		// Advisory degradation is never surfaced as an error.
		a.log.Warnw("advisory failed, falling back to heuristic", "error", err)
		state.Append(session.LevelWarning, "retry advisory unavailable, using heuristic", map[string]any{"error": err.Error()})
		metrics.IncAdvisoryFallback("retry")
	}

	return a.heuristic(attempt, current, progress, noProgress)
}

// heuristic is the deterministic fallback policy.
func (a *Analyzer) heuristic(attempt int, current api.ValidationResult, progress Progress, noProgress bool) advisory.RetryRecommendation {
	if attempt <= 1 {
		return advisory.RetryRecommendation{
			ShouldRetry: true,
			Strategy:    advisory.StrategyRetry,
			Approach:    advisory.ApproachGeneric,
			Reasoning:   "first correction attempt, retrying is always worthwhile",
			Message:     "Retrying the conversion with automatic corrections.",
		}
	}

	if noProgress {
		return advisory.RetryRecommendation{
			ShouldRetry:      false,
			Strategy:         advisory.StrategyAskUser,
			AskUser:          true,
			Reasoning:        "the issue set is unchanged since the last attempt and nothing new was applied",
			QuestionsForUser: questionsFor(current.Issues),
			Message:          "Automatic corrections are not making progress. Additional information is needed.",
		}
	}

	if missingMetadataDominated(current.Issues) {
		return advisory.RetryRecommendation{
			ShouldRetry: true,
			Strategy:    advisory.StrategyRetry,
			Approach:    advisory.ApproachFocusOnMetadata,
			Reasoning:   "most remaining issues report missing metadata fields",
			Message:     "Retrying with a focus on filling in missing metadata.",
		}
	}

	if attempt <= a.maxAttempts {
		return advisory.RetryRecommendation{
			ShouldRetry: true,
			Strategy:    advisory.StrategyRetry,
			Approach:    advisory.ApproachGeneric,
			Reasoning:   fmt.Sprintf("attempt %d of %d, issues changed since the last attempt", attempt, a.maxAttempts),
			Message:     "Retrying the conversion with automatic corrections.",
		}
	}

	return advisory.RetryRecommendation{
		ShouldRetry: false,
		Strategy:    advisory.StrategyStop,
		Reasoning:   fmt.Sprintf("attempt limit reached (%d of %d)", attempt, a.maxAttempts),
		Message:     fmt.Sprintf("The maximum of %d correction attempts has been reached.", a.maxAttempts),
	}
}

// questionsFor derives targeted questions from the open issues.
func questionsFor(issues []api.ValidationIssue) []string {
	questions := make([]string, 0, len(issues))
	seen := map[string]bool{}
	for _, issue := range issues {
		q := fmt.Sprintf("Validation reported %q (%s). Can you supply the missing information?", issue.Message, issue.CheckName)
		if seen[q] {
			continue
		}
		seen[q] = true
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		questions = append(questions, "Validation keeps failing for the same reasons. Can you describe what the file should contain?")
	}
	return questions
}
