package coordinator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
	"github.com/archivekit/conversion-assistant/internal/advisory"
	"github.com/archivekit/conversion-assistant/internal/analyzer"
	"github.com/archivekit/conversion-assistant/internal/engines"
	"github.com/archivekit/conversion-assistant/internal/router"
	"github.com/archivekit/conversion-assistant/internal/session"
)

// fakeConversion scripts the conversion engine.
type fakeConversion struct {
	detection engines.FormatDetection
	runErr    error
	applyErr  error

	runs    int
	applied [][]engines.Correction
}

func (f *fakeConversion) DetectFormat(context.Context, string) (engines.FormatDetection, error) {
	return f.detection, nil
}

func (f *fakeConversion) Run(context.Context, engines.ConversionRequest) (api.ConversionResult, error) {
	f.runs++
	if f.runErr != nil {
		return api.ConversionResult{}, f.runErr
	}
	return api.ConversionResult{OutputPath: "/out/data.std", Checksum: "abc123"}, nil
}

func (f *fakeConversion) ApplyCorrections(_ context.Context, _ string, corrections []engines.Correction) (api.ConversionResult, error) {
	f.applied = append(f.applied, corrections)
	if f.applyErr != nil {
		return api.ConversionResult{}, f.applyErr
	}
	return api.ConversionResult{OutputPath: "/out/data.std", Checksum: "def456"}, nil
}

// fakeValidation returns its scripted results in order, repeating the last.
type fakeValidation struct {
	results []api.ValidationResult
	calls   int
}

func (f *fakeValidation) Run(context.Context, string) (api.ValidationResult, error) {
	if len(f.results) == 0 {
		return api.ValidationResult{OverallStatus: api.ValidationPassed}, nil
	}
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i], nil
}

// scriptedAdvisor implements advisory.Advisor with fixed answers.
type scriptedAdvisor struct {
	retry       advisory.RetryRecommendation
	retryErr    error
	analysis    advisory.CorrectionAnalysis
	analysisErr error
}

func (s *scriptedAdvisor) RecommendRetry(context.Context, advisory.RetryRequest) (advisory.RetryRecommendation, error) {
	return s.retry, s.retryErr
}

func (s *scriptedAdvisor) AnalyzeCorrections(context.Context, api.ValidationResult, map[string]any) (advisory.CorrectionAnalysis, error) {
	return s.analysis, s.analysisErr
}

func retryAdvisor() *scriptedAdvisor {
	return &scriptedAdvisor{retry: advisory.RetryRecommendation{
		ShouldRetry: true,
		Strategy:    advisory.StrategyRetry,
		Approach:    advisory.ApproachGeneric,
		Reasoning:   "scripted",
		Message:     "Retrying.",
	}}
}

type harness struct {
	router     *router.Router
	state      *session.Session
	conversion *fakeConversion
	validation *fakeValidation
}

func newHarness(t *testing.T, maxAttempts int, conv *fakeConversion, val *fakeValidation, adv advisory.Advisor) *harness {
	t.Helper()
	state := session.New()
	r := router.New(state)
	t.Cleanup(r.Stop)
	state.AttachNotifier(r)

	engines.RegisterHandlers(r, conv, val, engines.HandlerConfig{ReportDir: t.TempDir()})
	New(r, analyzer.New(adv, maxAttempts), adv, maxAttempts)

	return &harness{router: r, state: state, conversion: conv, validation: val}
}

func (h *harness) dispatch(op string, params map[string]any) api.Response {
	return h.router.Dispatch(context.Background(), api.Envelope{
		TargetGroup: GroupWorkflow,
		Operation:   op,
		Context:     params,
		MessageID:   "test",
	})
}

// awaitingRetry walks the session into AWAITING_RETRY_APPROVAL with the
// given failed validation on record and the attempt counter at n.
func (h *harness) awaitingRetry(t *testing.T, attempts int, result api.ValidationResult) {
	t.Helper()
	for _, st := range []session.Status{
		session.StatusUploading, session.StatusDetectingFormat,
		session.StatusConverting, session.StatusValidating,
		session.StatusAwaitingRetryApproval,
	} {
		require.NoError(t, h.state.UpdateStatus(st))
	}
	h.state.SetArtifact("/out/data.std", "abc123")
	h.state.SetLastValidationResult(result)
	for i := 0; i < attempts; i++ {
		h.state.IncrementCorrectionAttempt()
	}
}

func failedValidation(issues ...api.ValidationIssue) api.ValidationResult {
	return api.ValidationResult{OverallStatus: api.ValidationFailed, Issues: issues}
}

func issue(check, msg string) api.ValidationIssue {
	return api.ValidationIssue{CheckName: check, Message: msg, Severity: api.SeverityError}
}

func TestApproveWhileIdleIsInvalidState(t *testing.T) {
	h := newHarness(t, 5, &fakeConversion{}, &fakeValidation{}, nil)

	resp := h.dispatch(OpRetryDecision, map[string]any{"decision": DecisionApprove})
	require.False(t, resp.Success)
	assert.Equal(t, router.ErrInvalidState, resp.Error.Code)
	assert.Equal(t, session.StatusIdle, h.state.Status())
}

func TestApprovedRetryRunsToCompletion(t *testing.T) {
	val := &fakeValidation{results: []api.ValidationResult{
		{OverallStatus: api.ValidationPassed},
	}}
	h := newHarness(t, 5, &fakeConversion{}, val, retryAdvisor())
	h.awaitingRetry(t, 4, failedValidation(issue("metadata_subject", "subject_id missing")))

	resp := h.dispatch(OpRetryDecision, map[string]any{"decision": DecisionApprove})
	require.True(t, resp.Success, "error: %+v", resp.Error)

	assert.Equal(t, 5, h.state.CorrectionAttempt())
	assert.Equal(t, session.StatusCompleted, h.state.Status())
	assert.Equal(t, session.OutcomePassedAccepted, h.state.ValidationOutcome())
	assert.Equal(t, 1, h.conversion.runs)
}

func TestApprovedRetryMayLoopBackToApproval(t *testing.T) {
	stillFailing := failedValidation(issue("format_dtype", "unexpected dtype"))
	val := &fakeValidation{results: []api.ValidationResult{stillFailing}}
	h := newHarness(t, 5, &fakeConversion{}, val, retryAdvisor())
	h.awaitingRetry(t, 2, failedValidation(issue("metadata_subject", "subject_id missing")))

	resp := h.dispatch(OpRetryDecision, map[string]any{"decision": DecisionApprove})
	require.True(t, resp.Success)
	assert.Equal(t, session.StatusAwaitingRetryApproval, h.state.Status())
	assert.Equal(t, 3, h.state.CorrectionAttempt())
}

func TestApproveAtCapIsRejectedWithoutIncrement(t *testing.T) {
	h := newHarness(t, 5, &fakeConversion{}, &fakeValidation{}, retryAdvisor())
	h.awaitingRetry(t, 5, failedValidation(issue("format_dtype", "unexpected dtype")))

	resp := h.dispatch(OpRetryDecision, map[string]any{"decision": DecisionApprove})
	require.False(t, resp.Success)
	assert.Equal(t, router.ErrMaxCorrections, resp.Error.Code)
	assert.Equal(t, 5, h.state.CorrectionAttempt(), "a rejected approval must not consume an attempt")
	assert.Zero(t, h.conversion.runs)
}

func TestNoProgressWarnsButContinues(t *testing.T) {
	stuck := issue("format_dtype", "unexpected dtype")
	val := &fakeValidation{results: []api.ValidationResult{failedValidation(stuck)}}
	h := newHarness(t, 5, &fakeConversion{}, val, retryAdvisor())
	h.awaitingRetry(t, 2, failedValidation(stuck))
	h.state.BeginAttempt([]api.ValidationIssue{stuck})

	resp := h.dispatch(OpRetryDecision, map[string]any{"decision": DecisionApprove})
	require.True(t, resp.Success)
	assert.Equal(t, 1, h.conversion.runs, "no-progress is advisory, not a hard stop")

	var warned bool
	for _, entry := range h.state.Journal() {
		if entry.Message == "previous attempt made no measurable progress" {
			warned = true
			assert.Equal(t, session.LevelWarning, entry.Level)
		}
	}
	assert.True(t, warned)
}

func TestCollaboratorErrorDuringApplySurfacesVerbatim(t *testing.T) {
	adv := retryAdvisor()
	adv.analysis = advisory.CorrectionAnalysis{
		Analysis: "the subject id can be derived from the file name",
		Suggestions: []advisory.CorrectionSuggestion{{
			CheckName:      "metadata_subject",
			Field:          "subject_id",
			SuggestedValue: "mouse-17",
			Actionable:     true,
		}},
	}
	conv := &fakeConversion{
		applyErr: router.NewError(router.ErrCorrectionApplication, "correction rejected by converter"),
	}
	h := newHarness(t, 5, conv, &fakeValidation{}, adv)
	h.awaitingRetry(t, 1, failedValidation(issue("metadata_subject", "subject_id missing")))

	resp := h.dispatch(OpRetryDecision, map[string]any{"decision": DecisionApprove})
	require.False(t, resp.Success)
	assert.Equal(t, router.ErrCorrectionApplication, resp.Error.Code)
	assert.Equal(t, "correction rejected by converter", resp.Error.Message)
	assert.Equal(t, session.StatusAwaitingRetryApproval, h.state.Status())
}

func TestRejectEndsTheSession(t *testing.T) {
	h := newHarness(t, 5, &fakeConversion{}, &fakeValidation{}, nil)
	h.awaitingRetry(t, 2, failedValidation(issue("format_dtype", "unexpected dtype")))

	resp := h.dispatch(OpRetryDecision, map[string]any{"decision": DecisionReject})
	require.True(t, resp.Success)
	assert.Equal(t, session.StatusFailed, h.state.Status())
	assert.Equal(t, session.OutcomeFailedUserDeclined, h.state.ValidationOutcome())
}

func TestUnknownDecisionIsInvalid(t *testing.T) {
	h := newHarness(t, 5, &fakeConversion{}, &fakeValidation{}, nil)
	h.awaitingRetry(t, 0, failedValidation(issue("format_dtype", "unexpected dtype")))

	resp := h.dispatch(OpRetryDecision, map[string]any{"decision": "perhaps"})
	require.False(t, resp.Success)
	assert.Equal(t, router.ErrInvalidDecision, resp.Error.Code)

	resp = h.dispatch(OpRetryDecision, nil)
	require.False(t, resp.Success)
	assert.Equal(t, router.ErrMissingParameters, resp.Error.Code)
}

func TestAnalyzerStopFailsPersistent(t *testing.T) {
	adv := &scriptedAdvisor{retry: advisory.RetryRecommendation{
		ShouldRetry: false,
		Strategy:    advisory.StrategyStop,
		Reasoning:   "the file is structurally unconvertible",
		Message:     "This file cannot be converted automatically.",
	}}
	h := newHarness(t, 5, &fakeConversion{}, &fakeValidation{}, adv)
	h.awaitingRetry(t, 3, failedValidation(issue("format_header", "corrupt header")))

	resp := h.dispatch(OpRetryDecision, map[string]any{"decision": DecisionApprove})
	require.True(t, resp.Success)
	assert.Equal(t, session.StatusFailed, h.state.Status())
	assert.Equal(t, session.OutcomeFailedPersistent, h.state.ValidationOutcome())
}

func TestAskUserRecommendationPausesForInput(t *testing.T) {
	adv := &scriptedAdvisor{retry: advisory.RetryRecommendation{
		ShouldRetry:      false,
		Strategy:         advisory.StrategyAskUser,
		AskUser:          true,
		Reasoning:        "the subject id cannot be inferred",
		QuestionsForUser: []string{"What is the subject identifier for this recording?"},
		Message:          "More information is needed.",
	}}
	h := newHarness(t, 5, &fakeConversion{}, &fakeValidation{}, adv)
	h.awaitingRetry(t, 2, failedValidation(issue("metadata_subject", "subject_id missing")))

	resp := h.dispatch(OpRetryDecision, map[string]any{"decision": DecisionApprove})
	require.True(t, resp.Success)
	assert.Equal(t, session.StatusAwaitingUserInput, h.state.Status())
	assert.Equal(t, ModeMetadataQuestions, resp.Result["conversationMode"])
	assert.NotEmpty(t, resp.Result["questions"])
}

func TestStartConversionHappyPath(t *testing.T) {
	conv := &fakeConversion{detection: engines.FormatDetection{
		Format:     "rawbin",
		Confidence: 0.9,
		Metadata: map[string]any{
			"subject_id":          "mouse-17",
			"session_description": "Baseline recording before stimulus onset.",
			"experimenter":        "Doe, Jane",
			"institution":         "EBRI",
		},
	}}
	val := &fakeValidation{results: []api.ValidationResult{{OverallStatus: api.ValidationPassed}}}
	h := newHarness(t, 5, conv, val, nil)

	resp := h.dispatch(OpStartConversion, map[string]any{"inputPath": "/in/data.raw"})
	require.True(t, resp.Success, "error: %+v", resp.Error)
	assert.Equal(t, session.StatusCompleted, h.state.Status())
	assert.Equal(t, session.OutcomePassedAccepted, h.state.ValidationOutcome())
	assert.Equal(t, "/out/data.std", h.state.OutputPath())
}

func TestStartConversionAsksForMissingMetadata(t *testing.T) {
	conv := &fakeConversion{detection: engines.FormatDetection{Format: "rawbin", Confidence: 0.9}}
	h := newHarness(t, 5, conv, &fakeValidation{}, nil)

	resp := h.dispatch(OpStartConversion, map[string]any{"inputPath": "/in/data.raw"})
	require.True(t, resp.Success)
	assert.Equal(t, session.StatusAwaitingUserInput, h.state.Status())
	assert.Equal(t, ModeMetadataQuestions, resp.Result["conversationMode"])

	questions, ok := resp.Result["questions"].([]string)
	require.True(t, ok)
	assert.Len(t, questions, 4)

	// Supplying the answers resumes the pipeline.
	resp = h.dispatch(OpProvideInput, map[string]any{"fields": map[string]any{
		"subject_id":          "mouse-17",
		"session_description": "Baseline recording before stimulus onset.",
		"experimenter":        "Doe, Jane",
		"institution":         "EBRI",
	}})
	require.True(t, resp.Success, "error: %+v", resp.Error)
	assert.Equal(t, session.StatusCompleted, h.state.Status())

	prov, ok := h.state.Provenance("subject_id")
	require.True(t, ok)
	assert.Equal(t, session.SourceUserSpecified, prov.Source)
}

func TestProvideInputValidatesValues(t *testing.T) {
	conv := &fakeConversion{detection: engines.FormatDetection{Format: "rawbin"}}
	h := newHarness(t, 5, conv, &fakeValidation{}, nil)

	resp := h.dispatch(OpStartConversion, map[string]any{"inputPath": "/in/data.raw"})
	require.True(t, resp.Success)

	resp = h.dispatch(OpProvideInput, map[string]any{"fields": map[string]any{"subject_id": "mouse 17"}})
	require.False(t, resp.Success)
	assert.Equal(t, router.ErrMissingParameters, resp.Error.Code)
	_, ok := h.state.Metadata()["subject_id"]
	assert.False(t, ok, "rejected values must not be recorded")
}

func TestStartConversionRequiresIdle(t *testing.T) {
	h := newHarness(t, 5, &fakeConversion{}, &fakeValidation{}, nil)
	require.NoError(t, h.state.UpdateStatus(session.StatusUploading))

	resp := h.dispatch(OpStartConversion, map[string]any{"inputPath": "/in/data.raw"})
	require.False(t, resp.Success)
	assert.Equal(t, router.ErrInvalidState, resp.Error.Code)
}

func TestResetReturnsToIdle(t *testing.T) {
	h := newHarness(t, 5, &fakeConversion{}, &fakeValidation{}, nil)
	h.awaitingRetry(t, 3, failedValidation(issue("format_dtype", "unexpected dtype")))

	resp := h.dispatch(OpResetSession, nil)
	require.True(t, resp.Success)
	assert.Equal(t, session.StatusIdle, h.state.Status())
	assert.Zero(t, h.state.CorrectionAttempt())
}

func TestRetryFallsBackWhenAdvisoryAnalysisFails(t *testing.T) {
	adv := retryAdvisor()
	adv.analysisErr = fmt.Errorf("model overloaded")
	val := &fakeValidation{results: []api.ValidationResult{{OverallStatus: api.ValidationPassed}}}
	h := newHarness(t, 5, &fakeConversion{}, val, adv)
	h.awaitingRetry(t, 1, failedValidation(issue("format_dtype", "unexpected dtype")))

	resp := h.dispatch(OpRetryDecision, map[string]any{"decision": DecisionApprove})
	require.True(t, resp.Success, "advisory degradation must not surface as an error")
	assert.Equal(t, session.StatusCompleted, h.state.Status())
	assert.Equal(t, 1, h.conversion.runs, "falls back to a plain re-run")
	assert.Empty(t, h.conversion.applied)
}
