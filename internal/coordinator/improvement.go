package coordinator

import (
	"context"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/router"
	"github.com/archivekit/conversion-assistant/internal/session"
	"github.com/archivekit/conversion-assistant/pkg/metrics"
)

// handleImprovementDecision handles the choice offered after validation
// passed with issues: keep the artifact as is, or spend another attempt on
// improving it. Auto-fixes found on this path additionally need the user's
// explicit go-ahead before they touch the file, because the file is already
// acceptable.
func (c *Coordinator) handleImprovementDecision(ctx context.Context, env api.Envelope, state *session.Session) (map[string]any, error) {
	if state.Status() != session.StatusAwaitingUserInput {
		return nil, router.NewError(router.ErrInvalidState,
			"no improvement decision pending (status %s)", state.Status())
	}
	result, ok := state.LastValidationResult()
	if !ok || result.OverallStatus != api.ValidationPassedWithIssues {
		return nil, router.NewError(router.ErrInvalidState,
			"improvement decisions require a passed-with-issues validation")
	}

	decision, err := decisionParam(env)
	if err != nil {
		return nil, err
	}

	switch decision {
	case DecisionAccept:
		c.pendingFixes = nil
		return c.acceptWithWarnings(ctx, state)

	case DecisionImprove:
		return c.startImprovement(ctx, state, result)

	case DecisionApplyFix:
		if len(c.pendingFixes) == 0 {
			return nil, router.NewError(router.ErrInvalidDecision, "no fixes pending approval")
		}
		fixes := c.pendingFixes
		c.pendingFixes = nil
		return c.convertAndValidate(ctx, state, fixes)

	case DecisionCancelFix:
		if len(c.pendingFixes) == 0 {
			return nil, router.NewError(router.ErrInvalidDecision, "no fixes pending approval")
		}
		c.pendingFixes = nil
		state.Append(session.LevelInfo, "user declined the proposed fixes", nil)
		return map[string]any{
			"status":           string(state.Status()),
			"conversationMode": ModeImprovement,
			"message":          "Fixes discarded. Accept the file as is, or try to improve it.",
		}, nil

	default:
		return nil, router.NewError(router.ErrInvalidDecision,
			"unknown improvement decision %q", decision)
	}
}

// startImprovement spends one correction attempt on analyzing the remaining
// warnings. The attempt cap applies here exactly as on the retry path, and
// improving without an advisory analysis is refused rather than degraded:
// blind re-runs cannot improve a file that already passed.
func (c *Coordinator) startImprovement(ctx context.Context, state *session.Session, result api.ValidationResult) (map[string]any, error) {
	if state.CorrectionAttempt() >= c.maxAttempts {
		e := router.NewError(router.ErrMaxCorrections,
			"correction limit of %d attempts reached", c.maxAttempts)
		e.Context = map[string]any{"remainingIssues": len(result.Issues)}
		return nil, e
	}

	if c.advisor == nil {
		return nil, router.NewError(router.ErrCorrectionAnalysis,
			"no advisory configured to analyze the remaining issues")
	}

	analysis, err := c.advisor.AnalyzeCorrections(ctx, result, state.Metadata())
	if err != nil {
		c.log.Warnw("improvement analysis failed", "error", err)
		state.Append(session.LevelWarning, "improvement analysis failed", map[string]any{"error": err.Error()})
		metrics.IncAdvisoryFallback("improvement")
		return nil, router.NewError(router.ErrCorrectionAnalysis,
			"could not analyze the remaining issues: %v", err)
	}

	attempt := state.IncrementCorrectionAttempt()
	metrics.IncCorrectionAttempt()
	state.Append(session.LevelInfo, "improvement attempt started",
		map[string]any{"attempt": attempt, "maxAttempts": c.maxAttempts})
	state.BeginAttempt(result.Issues)

	corrections := c.partition(analysis)

	if len(corrections.UserInputRequired) > 0 {
		return map[string]any{
			"status":           string(state.Status()),
			"conversationMode": ModeMetadataQuestions,
			"questions":        questionList(corrections.UserInputRequired),
			"analysis":         corrections.Analysis,
		}, nil
	}

	if len(corrections.AutoFixable) > 0 {
		c.pendingFixes = corrections.AutoFixable
		return map[string]any{
			"status":           string(state.Status()),
			"conversationMode": ModeAutofixApproval,
			"proposedFixes":    fixSummaries(corrections.AutoFixable),
			"analysis":         corrections.Analysis,
			"message":          "Apply these fixes, or cancel to keep the file unchanged.",
		}, nil
	}

	return nil, router.NewError(router.ErrCorrectionAnalysis,
		"analysis produced no applicable corrections")
}
