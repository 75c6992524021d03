// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations.
package repo

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-fitness-backend/internal/domain"
)

// pragmas are applied by the driver on every pooled connection. Setting them
// with a one-off Exec would only affect whichever connection ran it.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// DSN builds a SQLite DSN for path with the standard pragmas attached.
func DSN(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// GormConfig is the GORM configuration shared by the binaries and tests.
// Timestamps are always generated in UTC so that stored values compare
// correctly against UTC query parameters.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// OpenSQLite opens (or creates) a SQLite database with the standard PRAGMAs,
// a bounded pool, and OpenTelemetry query tracing.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(DSN(path)), GormConfig())
	if err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("gorm tracing: %w", err)
	}

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// Models lists every persisted type in dependency order.
func Models() []any {
	return []any{
		&domain.User{},
		&domain.WorkoutSession{},
		&domain.Exercise{},
		&domain.SessionExercise{},
		&domain.ExerciseSet{},
		&domain.TrainingPlan{},
		&domain.BodyMetric{},
		&domain.UserContact{},
		&domain.UserProfile{},
		&domain.UserStateHistory{},
		&domain.UserPoint{},
		&domain.UserBadge{},
		&domain.UserFollow{},
		&domain.MediaObject{},
		&domain.AuthToken{},
		&domain.RefreshToken{},
		&domain.AuthSession{},
		&domain.IdempotencyKey{},
		&domain.UserTombstone{},
		&domain.AuditLog{},
	}
}

// AutoMigrate creates or updates the schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
