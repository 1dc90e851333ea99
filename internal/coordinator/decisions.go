package coordinator

import (
	"context"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/engines"
	"github.com/archivekit/conversion-assistant/internal/router"
	"github.com/archivekit/conversion-assistant/internal/session"
	"github.com/archivekit/conversion-assistant/pkg/metrics"
)

// handleRetryDecision handles the user's verdict after a failed validation:
// approve runs another correction attempt, reject ends the session, accept
// takes a passed-with-issues artifact as final.
func (c *Coordinator) handleRetryDecision(ctx context.Context, env api.Envelope, state *session.Session) (map[string]any, error) {
	if state.Status() != session.StatusAwaitingRetryApproval {
		return nil, router.NewError(router.ErrInvalidState,
			"no retry decision pending (status %s)", state.Status())
	}

	decision, err := decisionParam(env)
	if err != nil {
		return nil, err
	}

	switch decision {
	case DecisionReject:
		state.SetValidationOutcome(session.OutcomeFailedUserDeclined)
		if err := state.UpdateStatus(session.StatusFailed); err != nil {
			return nil, router.NewError(router.ErrInvalidState, "%v", err)
		}
		state.Append(session.LevelInfo, "user declined further correction attempts", nil)
		return map[string]any{
			"status":  string(state.Status()),
			"outcome": string(state.ValidationOutcome()),
		}, nil

	case DecisionAccept:
		result, ok := state.LastValidationResult()
		if !ok || result.OverallStatus != api.ValidationPassedWithIssues {
			return nil, router.NewError(router.ErrInvalidDecision,
				"accept is only valid when validation passed with issues")
		}
		return c.acceptWithWarnings(ctx, state)

	case DecisionApprove:
		return c.runRetryAttempt(ctx, state)

	default:
		return nil, router.NewError(router.ErrInvalidDecision,
			"unknown retry decision %q", decision)
	}
}

// runRetryAttempt executes one approved correction attempt end to end.
func (c *Coordinator) runRetryAttempt(ctx context.Context, state *session.Session) (map[string]any, error) {
	result, ok := state.LastValidationResult()
	if !ok {
		return nil, router.NewError(router.ErrInvalidState, "no validation result to correct against")
	}

	// The cap is checked before the counter moves: a rejected approval must
	// leave the attempt count untouched.
	if state.CorrectionAttempt() >= c.maxAttempts {
		e := router.NewError(router.ErrMaxCorrections,
			"correction limit of %d attempts reached", c.maxAttempts)
		e.Context = map[string]any{"remainingIssues": len(result.Issues)}
		return nil, e
	}

	attempt := state.IncrementCorrectionAttempt()
	metrics.IncCorrectionAttempt()
	state.Append(session.LevelInfo, "correction attempt approved",
		map[string]any{"attempt": attempt, "maxAttempts": c.maxAttempts})

	if state.DetectNoProgress(result.Issues) {
		// Worth flagging, but the user explicitly approved this attempt.
		state.Append(session.LevelWarning,
			"previous attempt made no measurable progress", map[string]any{"attempt": attempt})
	}

	// The analyzer reads the previous attempt's issue set and flags, so the
	// new attempt's bookkeeping starts only once a continuing branch is
	// chosen.
	recommendation := c.analyzer.AnalyzeAndRecommend(ctx, state, result)

	if recommendation.AskUser && len(recommendation.QuestionsForUser) > 0 {
		state.BeginAttempt(result.Issues)
		if err := state.UpdateStatus(session.StatusAwaitingUserInput); err != nil {
			return nil, router.NewError(router.ErrInvalidState, "%v", err)
		}
		return map[string]any{
			"status":           string(state.Status()),
			"conversationMode": ModeMetadataQuestions,
			"questions":        recommendation.QuestionsForUser,
			"message":          recommendation.Message,
		}, nil
	}

	if !recommendation.ShouldRetry {
		state.SetValidationOutcome(session.OutcomeFailedPersistent)
		if err := state.UpdateStatus(session.StatusFailed); err != nil {
			return nil, router.NewError(router.ErrInvalidState, "%v", err)
		}
		state.Append(session.LevelInfo, "correction loop stopped",
			map[string]any{"reasoning": recommendation.Reasoning})
		return map[string]any{
			"status":  string(state.Status()),
			"outcome": string(state.ValidationOutcome()),
			"message": recommendation.Message,
		}, nil
	}

	corrections, err := c.analyzeCorrections(ctx, state, result)
	if err != nil {
		return nil, err
	}

	if len(corrections.UserInputRequired) > 0 {
		state.BeginAttempt(result.Issues)
		if err := state.UpdateStatus(session.StatusAwaitingUserInput); err != nil {
			return nil, router.NewError(router.ErrInvalidState, "%v", err)
		}
		return map[string]any{
			"status":           string(state.Status()),
			"conversationMode": ModeMetadataQuestions,
			"questions":        questionList(corrections.UserInputRequired),
			"analysis":         corrections.Analysis,
		}, nil
	}

	state.BeginAttempt(result.Issues)
	return c.convertAndValidate(ctx, state, corrections.AutoFixable)
}

// acceptWithWarnings finalizes a passed-with-issues artifact on the user's
// say-so. A report failure is logged but does not block acceptance.
func (c *Coordinator) acceptWithWarnings(ctx context.Context, state *session.Session) (map[string]any, error) {
	if report := c.dispatch(ctx, engines.GroupReport, engines.OpGenerateReport, nil); !report.Success {
		state.Append(session.LevelWarning, "report generation failed", map[string]any{"error": report.Error.Message})
	}

	state.SetValidationOutcome(session.OutcomeAcceptedWithWarnings)
	if err := state.UpdateStatus(session.StatusCompleted); err != nil {
		return nil, router.NewError(router.ErrInvalidState, "%v", err)
	}
	state.Append(session.LevelInfo, "artifact accepted with outstanding warnings", nil)
	return map[string]any{
		"status":  string(state.Status()),
		"outcome": string(state.ValidationOutcome()),
	}, nil
}
