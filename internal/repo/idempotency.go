// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the idempotency store used to implement
// safe-retry semantics for mutating endpoints.
//
// Duplicate detection relies only on the unique index over
// (user_id, method, route, client_key): inserts never read first, they insert
// with ON CONFLICT DO NOTHING and read back on conflict.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-fitness-backend/internal/domain"
)

// ErrAlreadyPersisted is returned when a response is attached to a record that
// already carries one.
var ErrAlreadyPersisted = errors.New("idempotency response already persisted")

// InsertIdempotencyKey inserts rec unless a row with the same scope exists.
// It reports whether this call created the row.
func (s *Store) InsertIdempotencyKey(ctx context.Context, rec *domain.IdempotencyKey) (bool, error) {
	res := s.conn(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetIdempotencyKey returns the record for scope or ErrNotFound.
func (s *Store) GetIdempotencyKey(ctx context.Context, scope domain.IdempotencyScope) (*domain.IdempotencyKey, error) {
	var rec domain.IdempotencyKey
	err := s.conn(ctx).
		Where("user_id = ? AND method = ? AND route = ? AND client_key = ?",
			scope.UserID, scope.Method, scope.Route, scope.ClientKey).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveIdempotencyResponse attaches the final response to the record id. The
// update only applies while no response is recorded; a second call returns
// ErrAlreadyPersisted and an unknown id returns ErrNotFound.
func (s *Store) SaveIdempotencyResponse(ctx context.Context, id string, status int, header map[string]string, body []byte) error {
	db := s.conn(ctx)
	res := db.Model(&domain.IdempotencyKey{}).
		Where("id = ? AND response_status IS NULL", id).
		Select("response_status", "response_body", "response_headers").
		Updates(&domain.IdempotencyKey{
			ResponseStatus:  &status,
			ResponseBody:    body,
			ResponseHeaders: header,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := db.Model(&domain.IdempotencyKey{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrAlreadyPersisted
}

// ReleaseIdempotencyKey deletes the record id while it is still in flight, so
// the client key can be used again. It reports whether a row was removed;
// completed records are never touched.
func (s *Store) ReleaseIdempotencyKey(ctx context.Context, id string) (bool, error) {
	res := s.conn(ctx).
		Where("id = ? AND response_status IS NULL", id).
		Delete(&domain.IdempotencyKey{})
	return res.RowsAffected == 1, res.Error
}

// DeleteIdempotencyKeysBefore removes records created at or before cutoff,
// whether completed or abandoned in flight.
func (s *Store) DeleteIdempotencyKeysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.conn(ctx).
		Where("created_at <= ?", cutoff.UTC()).
		Delete(&domain.IdempotencyKey{})
	return res.RowsAffected, res.Error
}
