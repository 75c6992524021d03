// Package repo implements the data persistence layer for domain entities,
// backed by GORM.
//
// All access goes through a Store. A Store wraps either the connection pool or
// a live transaction; Tx hands the callback a Store bound to a transaction, so
// every repository method works the same way standalone or as part of a larger
// unit of work without optional transaction parameters.
//
// Error semantics:
//   - Missing rows are reported as ErrNotFound (an alias of
//     gorm.ErrRecordNotFound).
//   - Unique-constraint violations on inserts are reported as ErrDuplicate.
//   - Any other driver error is propagated unchanged or wrapped with %w.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that an insert hit a unique constraint.
var ErrDuplicate = errors.New("duplicate")

// Store is the unit of work handed to services.
type Store struct {
	db *gorm.DB
}

// NewStore binds a Store to db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle (pool or transaction).
func (s *Store) DB() *gorm.DB { return s.db }

// Tx runs fn inside a transaction. The transaction commits when fn returns nil
// and rolls back on error or panic. Nested calls use savepoints.
func (s *Store) Tx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// isDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// tableOf returns the table name of a model implementing the GORM tabler
// interface.
func tableOf(model any) string {
	if t, ok := model.(interface{ TableName() string }); ok {
		return t.TableName()
	}
	return "unknown"
}
