package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"exam-reservation-backend/config"
	"exam-reservation-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite has no row locks; a single connection serializes transactions.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.Driver == "postgres" {
		log.Println("Applying PostgreSQL range indexes and constraints...")
		if err := applyPostgresDDL(db); err != nil {
			log.Printf("Warning: failed to apply some PostgreSQL DDL: %v. Continuing without them.", err)
		}
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate creates or updates every table and the indexes shared by all dialects.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Slot{},
		&model.Reservation{},
		&model.ReservationSlot{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}

	ddls := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_slot_window ON slots (date, start_at, end_at)",
		"CREATE INDEX IF NOT EXISTS idx_slots_date_remaining ON slots (date, remaining_capacity)",
	}
	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}

func applyPostgresDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS btree_gist;",

		// Ledger bounds: remaining capacity never leaves [0, max].
		"ALTER TABLE slots DROP CONSTRAINT IF EXISTS slots_remaining_bounds;",
		"ALTER TABLE slots ADD CONSTRAINT slots_remaining_bounds " +
			"CHECK (remaining_capacity >= 0 AND remaining_capacity <= max_capacity);",
		"ALTER TABLE slots DROP CONSTRAINT IF EXISTS slots_period_valid;",
		"ALTER TABLE slots ADD CONSTRAINT slots_period_valid CHECK (start_at < end_at);",

		"ALTER TABLE reservations DROP CONSTRAINT IF EXISTS check_exam_time_valid;",
		"ALTER TABLE reservations ADD CONSTRAINT check_exam_time_valid CHECK (start_at < end_at);",
		"ALTER TABLE reservations DROP CONSTRAINT IF EXISTS check_applicants_positive;",
		"ALTER TABLE reservations ADD CONSTRAINT check_applicants_positive CHECK (applicants > 0);",

		// Expression GiST indexes serve the && predicate (lower bound closed, upper open).
		"CREATE INDEX IF NOT EXISTS idx_slots_time_range ON slots " +
			"USING GIST (tstzrange(start_at, end_at, '[)'));",
		"CREATE INDEX IF NOT EXISTS idx_reservations_time_range ON reservations " +
			"USING GIST (tstzrange(start_at, end_at, '[)'));",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
