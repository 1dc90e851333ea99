package store

import (
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/archivekit/conversion-assistant/internal/config"
	"github.com/archivekit/conversion-assistant/internal/store/model"
)

func InitDB(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.Default.LogMode(logger.Warn)

	newDB, err := gorm.Open(sqlite.Open(cfg.Journal.Path), &gorm.Config{Logger: newLogger, TranslateError: true})
	if err != nil {
		zap.S().Named("gorm").Errorf("failed to open journal database: %v", err)
		return nil, err
	}

	if err := newDB.AutoMigrate(&model.JournalEntry{}); err != nil {
		zap.S().Named("gorm").Errorf("failed to migrate journal schema: %v", err)
		return nil, err
	}

	return newDB, nil
}
