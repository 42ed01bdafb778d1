package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pagebuilder/api-server/internal/config"
	"github.com/pagebuilder/api-server/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the sqlite database and migrates the schema.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	if dir := filepath.Dir(cfg.Storage.DatabasePath); dir != "" && dir != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.Storage.DatabasePath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs the schema migration; split out so tests can open their own
// in-memory databases.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.APIKey{},
		&models.ActivityLog{},
		&models.CreatedPage{},
		&models.Page{},
		&models.PageMeta{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}
