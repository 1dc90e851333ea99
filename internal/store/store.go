// Package store persists the session journal. The journal is the only state
// that survives a process restart; everything else is rebuilt per session.
package store

import (
	"gorm.io/gorm"
)

type Store interface {
	Journal() Journal
	Close() error
}

type DataStore struct {
	journal Journal
	db      *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		journal: NewJournal(db),
		db:      db,
	}
}

func (s *DataStore) Journal() Journal {
	return s.journal
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
