package store

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/archivekit/conversion-assistant/internal/session"
	"github.com/archivekit/conversion-assistant/internal/store/model"
)

type Journal interface {
	Append(ctx context.Context, sessionID string, entry session.LogEntry) error
	List(ctx context.Context, sessionID string) ([]model.JournalEntry, error)
}

type JournalStore struct {
	db *gorm.DB
}

var _ Journal = (*JournalStore)(nil)

func NewJournal(db *gorm.DB) *JournalStore {
	return &JournalStore{db: db}
}

func (j *JournalStore) Append(ctx context.Context, sessionID string, entry session.LogEntry) error {
	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		// Unserializable payloads still deserve a journal row.
		contextJSON = []byte(`{"marshalError":true}`)
	}
	row := model.JournalEntry{
		SessionID: sessionID,
		Timestamp: entry.Timestamp,
		Level:     string(entry.Level),
		Message:   entry.Message,
		Context:   string(contextJSON),
	}
	return j.db.WithContext(ctx).Create(&row).Error
}

func (j *JournalStore) List(ctx context.Context, sessionID string) ([]model.JournalEntry, error) {
	var rows []model.JournalEntry
	err := j.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id asc").
		Find(&rows).Error
	return rows, err
}

// Sink adapts the journal store to the session's JournalSink interface.
type Sink struct {
	journal Journal
}

var _ session.JournalSink = (*Sink)(nil)

func NewSink(journal Journal) *Sink {
	return &Sink{journal: journal}
}

func (s *Sink) AppendEntry(sessionID string, entry session.LogEntry) error {
	return s.journal.Append(context.Background(), sessionID, entry)
}
