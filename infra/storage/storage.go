// Package storage implements the persistence collaborators on GORM
// with a SQLite driver, plus an in-memory variant for tests and
// broker-less development runs.
package storage

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Driver names accepted in configuration.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config selects the storage backend.
type Config struct {
	Driver string `koanf:"driver"`
	// Path is the SQLite database file. Ignored by the memory driver.
	Path string `koanf:"path"`
}

// Open connects to the configured SQLite database and migrates the
// schema. The memory driver never reaches this function.
func Open(cfg Config) (*gorm.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage: sqlite path is empty")
	}
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", cfg.Path, err)
	}
	if err := db.AutoMigrate(AllRecords()...); err != nil {
		return nil, fmt.Errorf("storage: auto-migrate: %w", err)
	}
	return db, nil
}
