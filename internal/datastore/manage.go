package datastore

import (
	"fmt"
	"time"

	"github.com/sentinelvision/sentinel-central/internal/logging"
	"gorm.io/gorm"
)

// performAutoMigration migrates all tables and logs the outcome.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	migrationStart := time.Now()
	log := logging.ForService("datastore").With("db_type", dbType)

	if debug {
		log.Debug("Starting database migration", "connection", connectionInfo)
	}

	if err := db.AutoMigrate(
		&Identity{},
		&DetectionEvent{},
		&PresenceSession{},
		&Movement{},
		&AnomalyEpisode{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	log.Debug("Database migration completed successfully",
		"duration", time.Since(migrationStart))
	return nil
}
