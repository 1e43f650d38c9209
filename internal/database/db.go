package database

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the state store. A postgres:// DSN uses the PostgreSQL
// driver; anything else is treated as a SQLite file path. A corrupt SQLite
// file is moved aside and the store reinitialized empty; losing history is
// acceptable, losing availability is not.
func Connect(dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := open(dsn, logLevel)
	if err == nil {
		if err = migrate(db); err == nil {
			return db, nil
		}
	}

	if isPostgres(dsn) {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	// SQLite path: treat open/migrate failure as corruption, reinitialize.
	log.Printf("Warning: state store %s unreadable (%v), reinitializing empty", dsn, err)
	backup := dsn + ".corrupt"
	if renameErr := os.Rename(dsn, backup); renameErr != nil && !os.IsNotExist(renameErr) {
		return nil, fmt.Errorf("failed to move corrupt state store aside: %w", renameErr)
	}

	db, err = open(dsn, logLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to reinitialize state store: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate reinitialized state store: %w", err)
	}
	return db, nil
}

func open(dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}
	if isPostgres(dsn) {
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&ServiceState{},
		&RestartAttempt{},
		&AlertGroup{},
		&MaintenanceWindow{},
		&MonitorSettings{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// InitializeDefaults creates default records if they don't exist
func InitializeDefaults(db *gorm.DB) error {
	_, err := GetOrCreateMonitorSettings(db)
	return err
}

// GetOrCreateMonitorSettings retrieves or creates monitor settings
// (singleton). Accepts a db parameter to support transaction contexts and
// easier testing.
func GetOrCreateMonitorSettings(db *gorm.DB) (*MonitorSettings, error) {
	var settings MonitorSettings
	result := db.First(&settings)
	if result.Error == gorm.ErrRecordNotFound {
		settings = *NewDefaultMonitorSettings()
		if err := db.Create(&settings).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}

// UpdateMonitorSettings persists changed monitor settings
func UpdateMonitorSettings(db *gorm.DB, settings *MonitorSettings) error {
	return db.Save(settings).Error
}

// VerifyWritable performs a round-trip write at startup. Running without a
// durable store would make restart counting and rate limiting meaningless,
// so a failure here is fatal to the caller.
func VerifyWritable(db *gorm.DB) error {
	probe := &MonitorSettings{}
	if err := db.First(probe).Error; err != nil && err != gorm.ErrRecordNotFound {
		return fmt.Errorf("state store not readable: %w", err)
	}
	settings, err := GetOrCreateMonitorSettings(db)
	if err != nil {
		return fmt.Errorf("state store not writable: %w", err)
	}
	if err := db.Save(settings).Error; err != nil {
		return fmt.Errorf("state store not writable: %w", err)
	}
	return nil
}

// Close closes the underlying connection
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
