package config

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitUserDB opens the SQLite account database.
func InitUserDB(cfg AuthConfig) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.UserDBPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to user database: %w", err)
	}
	return db, nil
}
