// Package coordinator implements the correction loop: it takes the user's
// decision after a failed or imperfect validation, decides between automatic
// correction, asking the user, and giving up, and drives the external
// engines through the router until the session reaches its next
// user-visible state.
package coordinator

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/advisory"
	"github.com/archivekit/conversion-assistant/internal/analyzer"
	"github.com/archivekit/conversion-assistant/internal/engines"
	"github.com/archivekit/conversion-assistant/internal/router"
	"github.com/archivekit/conversion-assistant/internal/session"
)

// Router groups and operations owned by the coordinator.
const (
	GroupWorkflow = "workflow"

	OpStartConversion     = "start_conversion"
	OpRetryDecision       = "retry_decision"
	OpImprovementDecision = "improvement_decision"
	OpProvideInput        = "provide_input"
	OpResetSession        = "reset_session"
)

// User decision tokens.
const (
	DecisionApprove   = "approve"
	DecisionReject    = "reject"
	DecisionAccept    = "accept"
	DecisionImprove   = "improve"
	DecisionApplyFix  = "apply_fixes"
	DecisionCancelFix = "cancel_fixes"
)

// Conversation modes returned alongside AWAITING_USER_INPUT so the UI knows
// which questions it is relaying.
const (
	ModeMetadataQuestions = "metadata_questions"
	ModeImprovement       = "improvement_decision"
	ModeAutofixApproval   = "autofix_approval"
)

type Coordinator struct {
	router      *router.Router
	analyzer    *analyzer.Analyzer
	advisor     advisory.Advisor
	maxAttempts int

	// pendingFixes holds auto-fixes awaiting explicit user approval on the
	// improvement path. Ephemeral per decision, never persisted.
	pendingFixes []engines.Correction

	log *zap.SugaredLogger
}

// New wires the coordinator onto the router. advisor may be nil; the
// analyzer's deterministic heuristics then carry the loop alone.
func New(r *router.Router, a *analyzer.Analyzer, advisor advisory.Advisor, maxAttempts int) *Coordinator {
	c := &Coordinator{
		router:      r,
		analyzer:    a,
		advisor:     advisor,
		maxAttempts: maxAttempts,
		log:         zap.S().Named("coordinator"),
	}

	r.Register(GroupWorkflow, OpStartConversion, c.handleStart)
	r.Register(GroupWorkflow, OpRetryDecision, c.handleRetryDecision)
	r.Register(GroupWorkflow, OpImprovementDecision, c.handleImprovementDecision)
	r.Register(GroupWorkflow, OpProvideInput, c.handleProvideInput)
	r.Register(GroupWorkflow, OpResetSession, c.handleReset)

	return c
}

func (c *Coordinator) handleReset(_ context.Context, _ api.Envelope, state *session.Session) (map[string]any, error) {
	c.pendingFixes = nil
	state.Reset()
	return map[string]any{"status": string(state.Status())}, nil
}

// dispatch runs a nested engine operation on the current dispatch goroutine.
func (c *Coordinator) dispatch(ctx context.Context, group, operation string, params map[string]any) api.Response {
	return c.router.DispatchInline(ctx, api.Envelope{
		TargetGroup: group,
		Operation:   operation,
		Context:     params,
		MessageID:   uuid.NewString(),
	})
}

func decisionParam(env api.Envelope) (string, error) {
	decision, ok := env.Context["decision"].(string)
	if !ok || decision == "" {
		return "", router.NewError(router.ErrMissingParameters, "decision is required")
	}
	return decision, nil
}

// responseError converts a failed dispatch response back into a coded error
// so the collaborator's code and message surface verbatim.
func responseError(resp api.Response) error {
	if resp.Error == nil {
		return router.NewError(router.ErrHandlerException, "dispatch failed without error detail")
	}
	e := router.NewError(resp.Error.Code, "%s", resp.Error.Message)
	e.Context = resp.Error.Context
	return e
}
