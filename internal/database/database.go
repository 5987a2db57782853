package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wayfarer-erp/backend/internal/models"
)

// Event writes arrive from the dispatcher goroutine while admin reads come
// from request handlers; WAL plus a busy timeout keeps them from failing
// with SQLITE_BUSY.
const pragmas = "_busy_timeout=5000&_journal_mode=WAL"

// Open bootstraps a SQLite database using the provided filesystem path or DSN.
func Open(dbPath string) (*gorm.DB, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := gorm.Open(sqlite.Open(dbPath+sep+pragmas), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

// Migrate creates or updates the tables the server writes to.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.SecurityEvent{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
