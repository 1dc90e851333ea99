// Package session holds the single mutable record describing one conversion
// job. All mutation goes through methods on Session so every change is
// journaled and broadcast in the order it was applied.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
)

type Status string

const (
	StatusIdle                  Status = "IDLE"
	StatusUploading             Status = "UPLOADING"
	StatusDetectingFormat       Status = "DETECTING_FORMAT"
	StatusAwaitingUserInput     Status = "AWAITING_USER_INPUT"
	StatusConverting            Status = "CONVERTING"
	StatusValidating            Status = "VALIDATING"
	StatusAwaitingRetryApproval Status = "AWAITING_RETRY_APPROVAL"
	StatusCompleted             Status = "COMPLETED"
	StatusFailed                Status = "FAILED"
)

type ValidationStatus string

const (
	ValidationStatusNone             ValidationStatus = ""
	ValidationStatusPassed           ValidationStatus = "PASSED"
	ValidationStatusPassedWithIssues ValidationStatus = "PASSED_WITH_ISSUES"
	ValidationStatusFailed           ValidationStatus = "FAILED"
)

type ValidationOutcome string

const (
	OutcomeNone                 ValidationOutcome = ""
	OutcomePassedAccepted       ValidationOutcome = "PASSED_ACCEPTED"
	OutcomeAcceptedWithWarnings ValidationOutcome = "ACCEPTED_WITH_WARNINGS"
	OutcomeFailedUserDeclined   ValidationOutcome = "FAILED_USER_DECLINED"
	OutcomeFailedPersistent     ValidationOutcome = "FAILED_PERSISTENT"
)

// allowedTransitions is the documented status graph. A status maps to the set
// of statuses a session may move to next. Reset is handled separately and is
// legal from any status.
var allowedTransitions = map[Status][]Status{
	StatusIdle:                  {StatusUploading, StatusDetectingFormat},
	StatusUploading:             {StatusDetectingFormat, StatusFailed},
	StatusDetectingFormat:       {StatusAwaitingUserInput, StatusConverting, StatusFailed},
	StatusAwaitingUserInput:     {StatusConverting, StatusAwaitingRetryApproval, StatusCompleted, StatusFailed},
	StatusConverting:            {StatusValidating, StatusAwaitingRetryApproval, StatusFailed},
	StatusValidating:            {StatusCompleted, StatusAwaitingUserInput, StatusAwaitingRetryApproval, StatusFailed},
	StatusAwaitingRetryApproval: {StatusConverting, StatusAwaitingUserInput, StatusCompleted, StatusFailed},
	StatusCompleted:             {},
	StatusFailed:                {},
}

// Notifier receives a synchronous notification for every applied mutation.
// The router implements it by fanning the event out to its subscribers.
type Notifier interface {
	Publish(eventType string, data map[string]any)
}

// Session is the per-job state record. It has exactly one writer at a time
// (the router's in-flight dispatch); the internal mutex exists only so the
// conversion progress observer can append journal entries and advance the
// progress percentage while the main dispatch is blocked on the engine.
type Session struct {
	ID uuid.UUID

	mu sync.Mutex

	status            Status
	validationStatus  ValidationStatus
	validationOutcome ValidationOutcome
	correctionAttempt int

	metadata   map[string]any
	provenance map[string]FieldProvenance

	lastValidationResult *api.ValidationResult

	previousValidationIssues []api.ValidationIssue
	userProvidedInput        bool
	autoCorrectionsApplied   bool

	inputPath  string
	outputPath string
	checksum   string
	progress   float64

	journal []LogEntry

	notifier Notifier
	sink     JournalSink
	log      *zap.SugaredLogger
}

type Option func(*Session)

// WithNotifier wires the event fan-out invoked after each mutation.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithJournalSink wires best-effort persistence for journal entries.
func WithJournalSink(sink JournalSink) Option {
	return func(s *Session) { s.sink = sink }
}

// AttachNotifier late-binds the notifier for the case where the notifier is
// itself constructed around this session. Call before any mutation.
func (s *Session) AttachNotifier(n Notifier) {
	s.notifier = n
}

func New(opts ...Option) *Session {
	s := &Session{
		ID:         uuid.New(),
		status:     StatusIdle,
		metadata:   map[string]any{},
		provenance: map[string]FieldProvenance{},
		log:        zap.S().Named("session"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) Status() Status                       { return s.status }
func (s *Session) ValidationStatus() ValidationStatus   { return s.validationStatus }
func (s *Session) ValidationOutcome() ValidationOutcome { return s.validationOutcome }
func (s *Session) CorrectionAttempt() int               { return s.correctionAttempt }
func (s *Session) InputPath() string                    { return s.inputPath }
func (s *Session) OutputPath() string                   { return s.outputPath }
func (s *Session) Checksum() string                     { return s.checksum }

func (s *Session) SetInputPath(path string) {
	s.inputPath = path
	s.Append(LevelInfo, "input file registered", map[string]any{"path": path})
}

// SetArtifact records the converted artifact returned by the conversion
// engine.
func (s *Session) SetArtifact(outputPath, checksum string) {
	s.outputPath = outputPath
	s.checksum = checksum
	s.Append(LevelInfo, "conversion artifact recorded", map[string]any{
		"outputPath": outputPath,
		"checksum":   checksum,
	})
}

// UpdateStatus is the only sanctioned way to change the session status. An
// attempt to move outside the documented graph is rejected.
func (s *Session) UpdateStatus(next Status) error {
	if next == s.status {
		return nil
	}
	if !transitionAllowed(s.status, next) {
		return fmt.Errorf("invalid status transition %s -> %s", s.status, next)
	}
	prev := s.status
	s.status = next
	s.Append(LevelInfo, "status changed", map[string]any{"from": string(prev), "to": string(next)})
	s.publish("status_changed", map[string]any{"from": string(prev), "to": string(next)})
	return nil
}

// UpdateValidationStatus records the last validator verdict.
func (s *Session) UpdateValidationStatus(next ValidationStatus) {
	prev := s.validationStatus
	s.validationStatus = next
	s.Append(LevelInfo, "validation status changed", map[string]any{"from": string(prev), "to": string(next)})
	s.publish("validation_status_changed", map[string]any{"from": string(prev), "to": string(next)})
}

// SetValidationOutcome records the user-facing disposition at a terminal
// decision point.
func (s *Session) SetValidationOutcome(outcome ValidationOutcome) {
	s.validationOutcome = outcome
	s.Append(LevelInfo, "validation outcome set", map[string]any{"outcome": string(outcome)})
}

// IncrementCorrectionAttempt bumps the attempt counter. Callers are
// responsible for checking the configured maximum before calling; the
// session does not self-enforce the cap.
func (s *Session) IncrementCorrectionAttempt() int {
	s.correctionAttempt++
	s.Append(LevelInfo, "correction attempt started", map[string]any{"attempt": s.correctionAttempt})
	return s.correctionAttempt
}

// SetLastValidationResult is called at the single point validation
// completes. The journal copy is kept purely for audit.
func (s *Session) SetLastValidationResult(result api.ValidationResult) {
	s.lastValidationResult = &result
	s.Append(LevelInfo, "validation completed", map[string]any{
		"validation": result,
		"status":     string(result.OverallStatus),
		"issues":     len(result.Issues),
	})
}

// LastValidationResult returns the most recent validation verdict. When the
// dedicated field is unset it falls back to scanning the journal backward for
// the newest entry carrying a validation context key.
func (s *Session) LastValidationResult() (api.ValidationResult, bool) {
	if s.lastValidationResult != nil {
		return *s.lastValidationResult, true
	}
	return s.lastValidationFromJournal()
}

func transitionAllowed(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *Session) publish(eventType string, data map[string]any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(eventType, data)
}

// Reset returns every field to its default. Counters, provenance, journal and
// per-attempt flags included.
func (s *Session) Reset() {
	s.mu.Lock()
	s.status = StatusIdle
	s.validationStatus = ValidationStatusNone
	s.validationOutcome = OutcomeNone
	s.correctionAttempt = 0
	s.metadata = map[string]any{}
	s.provenance = map[string]FieldProvenance{}
	s.lastValidationResult = nil
	s.previousValidationIssues = nil
	s.userProvidedInput = false
	s.autoCorrectionsApplied = false
	s.inputPath = ""
	s.outputPath = ""
	s.checksum = ""
	s.progress = 0
	s.journal = nil
	s.mu.Unlock()

	s.Append(LevelInfo, "session reset", nil)
	s.publish("session_reset", map[string]any{"sessionId": s.ID.String(), "at": time.Now().UTC().Format(time.RFC3339)})
}
