package coordinator

import (
	"context"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/engines"
	"github.com/archivekit/conversion-assistant/internal/metadata"
	"github.com/archivekit/conversion-assistant/internal/router"
	"github.com/archivekit/conversion-assistant/internal/session"
)

// handleStart begins the pipeline for a fresh session: register the input,
// detect its format, then either ask for the metadata the conversion needs
// or go straight to convert/validate.
func (c *Coordinator) handleStart(ctx context.Context, env api.Envelope, state *session.Session) (map[string]any, error) {
	if state.Status() != session.StatusIdle {
		return nil, router.NewError(router.ErrInvalidState, "conversion already started (status %s)", state.Status())
	}
	inputPath, ok := env.Context["inputPath"].(string)
	if !ok || inputPath == "" {
		return nil, router.NewError(router.ErrMissingParameters, "start_conversion requires inputPath")
	}

	state.SetInputPath(inputPath)
	if err := state.UpdateStatus(session.StatusUploading); err != nil {
		return nil, router.NewError(router.ErrInvalidState, "%v", err)
	}
	if err := state.UpdateStatus(session.StatusDetectingFormat); err != nil {
		return nil, router.NewError(router.ErrInvalidState, "%v", err)
	}

	if resp := c.dispatch(ctx, engines.GroupConversion, engines.OpDetectFormat, map[string]any{"inputPath": inputPath}); !resp.Success {
		_ = state.UpdateStatus(session.StatusFailed)
		return nil, responseError(resp)
	}

	if missing := c.missingRequiredFields(state); len(missing) > 0 {
		if err := state.UpdateStatus(session.StatusAwaitingUserInput); err != nil {
			return nil, router.NewError(router.ErrInvalidState, "%v", err)
		}
		return map[string]any{
			"status":           string(state.Status()),
			"conversationMode": ModeMetadataQuestions,
			"questions":        missing,
		}, nil
	}

	return c.convertAndValidate(ctx, state, nil)
}

// handleProvideInput takes the user's answers, records them with
// user-specified provenance, and re-runs the conversion.
func (c *Coordinator) handleProvideInput(ctx context.Context, env api.Envelope, state *session.Session) (map[string]any, error) {
	if state.Status() != session.StatusAwaitingUserInput {
		return nil, router.NewError(router.ErrInvalidState, "not waiting for user input (status %s)", state.Status())
	}

	fields, ok := env.Context["fields"].(map[string]any)
	if !ok || len(fields) == 0 {
		return nil, router.NewError(router.ErrMissingParameters, "provide_input requires a non-empty fields map")
	}

	for field, value := range fields {
		text, _ := value.(string)
		if err := metadata.CheckValue(field, text); err != nil {
			return nil, router.NewError(router.ErrMissingParameters, "%v", err)
		}
	}
	for field, value := range fields {
		state.SetUserMetadata(field, value, "user response")
	}

	if missing := c.missingRequiredFields(state); len(missing) > 0 {
		return map[string]any{
			"status":           string(state.Status()),
			"conversationMode": ModeMetadataQuestions,
			"questions":        missing,
		}, nil
	}

	return c.convertAndValidate(ctx, state, nil)
}

// missingRequiredFields lists prompts for known fields with no collected
// value yet.
func (c *Coordinator) missingRequiredFields(state *session.Session) []string {
	collected := state.Metadata()
	var prompts []string
	for _, field := range []string{
		metadata.FieldSubjectID,
		metadata.FieldSessionDescription,
		metadata.FieldExperimenter,
		metadata.FieldInstitution,
	} {
		if _, ok := collected[field]; !ok {
			prompts = append(prompts, metadata.PromptFor(field))
		}
	}
	return prompts
}

// convertAndValidate is the shared pipeline tail: apply corrections or run a
// conversion, validate the artifact, generate the report, and interpret the
// new outcome. A conversion or validation failure aborts the attempt and
// surfaces the collaborator's error directly, with the session returned to
// the state the attempt was approved from.
func (c *Coordinator) convertAndValidate(ctx context.Context, state *session.Session, fixes []engines.Correction) (map[string]any, error) {
	resumeStatus := state.Status()

	if err := state.UpdateStatus(session.StatusConverting); err != nil {
		return nil, router.NewError(router.ErrInvalidState, "%v", err)
	}

	var conversion api.Response
	if len(fixes) > 0 {
		conversion = c.dispatch(ctx, engines.GroupConversion, engines.OpApplyCorrections, map[string]any{"corrections": fixes})
	} else {
		conversion = c.dispatch(ctx, engines.GroupConversion, engines.OpRunConversion, nil)
	}
	if !conversion.Success {
		// Conversion failures are not auto-retried.
		c.abortAttempt(state, resumeStatus)
		return nil, responseError(conversion)
	}

	if err := state.UpdateStatus(session.StatusValidating); err != nil {
		return nil, router.NewError(router.ErrInvalidState, "%v", err)
	}
	validation := c.dispatch(ctx, engines.GroupValidation, engines.OpRunValidation, nil)
	if !validation.Success {
		c.abortAttempt(state, resumeStatus)
		return nil, responseError(validation)
	}

	if report := c.dispatch(ctx, engines.GroupReport, engines.OpGenerateReport, nil); !report.Success {
		// The report is advisory output; its failure never fails the attempt.
		state.Append(session.LevelWarning, "report generation failed", map[string]any{"error": report.Error.Message})
	}

	return c.interpretOutcome(state)
}

// abortAttempt handles a collaborator failure mid-attempt. An approved
// correction attempt returns to AWAITING_RETRY_APPROVAL so the user can
// decide again; a failure on the initial pipeline is terminal.
func (c *Coordinator) abortAttempt(state *session.Session, resume session.Status) {
	target := session.StatusFailed
	if resume == session.StatusAwaitingRetryApproval || resume == session.StatusAwaitingUserInput {
		target = session.StatusAwaitingRetryApproval
	}
	if err := state.UpdateStatus(target); err != nil {
		c.log.Errorw("failed to restore status after aborted attempt", "target", target, "error", err)
	}
}

// interpretOutcome maps the latest validation verdict onto the next
// user-visible state.
func (c *Coordinator) interpretOutcome(state *session.Session) (map[string]any, error) {
	result, ok := state.LastValidationResult()
	if !ok {
		return nil, router.NewError(router.ErrInvalidState, "no validation result recorded")
	}

	switch result.OverallStatus {
	case api.ValidationPassed:
		state.SetValidationOutcome(session.OutcomePassedAccepted)
		if err := state.UpdateStatus(session.StatusCompleted); err != nil {
			return nil, router.NewError(router.ErrInvalidState, "%v", err)
		}
		return map[string]any{
			"status":           string(state.Status()),
			"validationStatus": string(result.OverallStatus),
			"message":          "Conversion completed and validation passed.",
		}, nil

	case api.ValidationPassedWithIssues:
		if err := state.UpdateStatus(session.StatusAwaitingUserInput); err != nil {
			return nil, router.NewError(router.ErrInvalidState, "%v", err)
		}
		return map[string]any{
			"status":           string(state.Status()),
			"validationStatus": string(result.OverallStatus),
			"conversationMode": ModeImprovement,
			"issueCount":       len(result.Issues),
			"message":          "Validation passed with warnings. Accept the file as is, or try to improve it.",
		}, nil

	default:
		if err := state.UpdateStatus(session.StatusAwaitingRetryApproval); err != nil {
			return nil, router.NewError(router.ErrInvalidState, "%v", err)
		}
		return map[string]any{
			"status":           string(state.Status()),
			"validationStatus": string(result.OverallStatus),
			"issueCount":       len(result.Issues),
			"message":          "Validation failed. Approve another correction attempt, or reject to stop.",
		}, nil
	}
}
