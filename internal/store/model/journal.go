package model

import (
	"time"
)

// JournalEntry is the persisted mirror of one session journal record. Rows
// are append-only; nothing in the assistant updates or deletes them.
type JournalEntry struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index;not null"`
	Timestamp time.Time
	Level     string
	Message   string
	// Context is the structured payload serialized as JSON.
	Context string
}
