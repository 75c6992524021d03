// Package app assembles the process-wide dependencies shared by the HTTP
// server and the retention sweep: the database, the object-store deleter, the
// audit sinks and the account service.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-fitness-backend/internal/audit"
	"github.com/tbourn/go-fitness-backend/internal/config"
	"github.com/tbourn/go-fitness-backend/internal/repo"
	"github.com/tbourn/go-fitness-backend/internal/services"
	"github.com/tbourn/go-fitness-backend/internal/storage"
	"github.com/tbourn/go-fitness-backend/internal/sysutil"
)

// App holds the wired dependencies. Close releases them in reverse order.
type App struct {
	Store    *repo.Store
	Accounts *services.AccountService

	closers []func() error
}

// ConfigureLogging applies LOG_LEVEL and LOG_PRETTY to the global logger.
func ConfigureLogging(cfg config.Config) {
	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// New opens the database, migrates it and builds the account service with the
// configured storage and audit adapters.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a := &App{Store: repo.NewStore(db)}
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if err := repo.AutoMigrate(db); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	deleter, err := NewDeleter(ctx, cfg.Storage)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	sink, closeSink := NewAuditSink(a.Store, cfg.Audit)
	if closeSink != nil {
		a.closers = append(a.closers, closeSink)
	}

	acc := services.NewAccountService(a.Store)
	acc.Storage = deleter
	acc.Audit = sink
	acc.PurgeDelay = cfg.AccountPurgeDelay
	acc.BackupPurgeDays = cfg.BackupPurgeDays
	a.Accounts = acc
	return a, nil
}

// NewDeleter selects the object store used for media cleanup.
func NewDeleter(ctx context.Context, cfg config.StorageConfig) (storage.Deleter, error) {
	switch cfg.Driver {
	case "", "none":
		return storage.Noop{}, nil
	case "local":
		return storage.NewLocal(cfg.LocalDir), nil
	case "s3":
		s3, err := storage.NewS3(ctx, cfg.S3Bucket, cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return s3, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// NewAuditSink always records to the audit_logs table and additionally
// publishes to Kafka when brokers are configured. The returned closer is nil
// when there is nothing to flush.
func NewAuditSink(store *repo.Store, cfg config.AuditConfig) (audit.Sink, func() error) {
	db := audit.NewDBSink(store)
	if len(cfg.KafkaBrokers) == 0 {
		return db, nil
	}
	k := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
	return audit.Multi{db, k}, k.Close
}

// Close releases resources. It returns the joined errors of all closers.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
