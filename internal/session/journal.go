package session

import (
	"time"

	api "github.com/archivekit/conversion-assistant/api/v1alpha1"
)

type LogLevel string

const (
	LevelDebug   LogLevel = "debug"
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// LogEntry is one record of the session's append-only journal. Entries are
// never mutated after append.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Context   map[string]any
}

// JournalSink mirrors journal entries to durable storage. Persistence is
// best-effort: a sink failure must not fail the mutation that produced the
// entry.
type JournalSink interface {
	AppendEntry(sessionID string, entry LogEntry) error
}

// Append adds an entry to the journal. Safe to call from the conversion
// progress observer while a dispatch holds the session.
func (s *Session) Append(level LogLevel, message string, context map[string]any) {
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   context,
	}

	s.mu.Lock()
	s.journal = append(s.journal, entry)
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.AppendEntry(s.ID.String(), entry); err != nil {
			s.log.Warnw("journal persistence failed", "error", err, "message", message)
		}
	}
	s.publish("log_appended", map[string]any{
		"level":   string(level),
		"message": message,
		"context": context,
	})
}

// Journal returns a copy of the journal in append order.
func (s *Session) Journal() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.journal))
	copy(out, s.journal)
	return out
}

// lastValidationFromJournal scans the journal backward for the most recent
// entry carrying a validation payload. Kept as the recovery path for
// sessions journaled before the dedicated field existed.
func (s *Session) lastValidationFromJournal() (api.ValidationResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.journal) - 1; i >= 0; i-- {
		payload, ok := s.journal[i].Context["validation"]
		if !ok {
			continue
		}
		if result, ok := payload.(api.ValidationResult); ok {
			return result, true
		}
	}
	return api.ValidationResult{}, false
}

// SetProgress advances the conversion progress percentage. Progress never
// decreases; stale observer reads are dropped.
func (s *Session) SetProgress(pct float64) {
	if pct > 100 {
		pct = 100
	}
	s.mu.Lock()
	if pct <= s.progress {
		s.mu.Unlock()
		return
	}
	s.progress = pct
	s.mu.Unlock()

	s.publish("progress_updated", map[string]any{"progress": pct})
}

// Progress returns the current conversion progress percentage.
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}
