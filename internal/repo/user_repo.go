// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides account queries used by the deletion
// state machine.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-fitness-backend/internal/domain"
)

// CreateUser inserts u and maps unique violations to ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if u.Status == "" {
		u.Status = domain.StatusActive
	}
	if err := s.conn(ctx).Create(u).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUser fetches an account by id, or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := s.conn(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// DeletionSchedule holds the three timestamps written when an account is
// scheduled for deletion.
type DeletionSchedule struct {
	DeletedAt        time.Time
	PurgeScheduledAt time.Time
	BackupPurgeDueAt time.Time
}

// MarkPendingDeletion moves the account to pending_deletion with the given
// schedule. It returns ErrNotFound when no row matches.
func (s *Store) MarkPendingDeletion(ctx context.Context, id string, sch DeletionSchedule) error {
	res := s.conn(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":              domain.StatusPendingDeletion,
			"deleted_at":          sch.DeletedAt.UTC(),
			"purge_scheduled_at":  sch.PurgeScheduledAt.UTC(),
			"backup_purge_due_at": sch.BackupPurgeDueAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClearPendingDeletion returns a pending account to active and clears the
// schedule. It reports whether a pending row was updated.
func (s *Store) ClearPendingDeletion(ctx context.Context, id string) (bool, error) {
	res := s.conn(ctx).
		Model(&domain.User{}).
		Where("id = ? AND status = ?", id, domain.StatusPendingDeletion).
		Updates(map[string]any{
			"status":              domain.StatusActive,
			"deleted_at":          nil,
			"purge_scheduled_at":  nil,
			"backup_purge_due_at": nil,
		})
	return res.RowsAffected == 1, res.Error
}

// AppendStateHistory records a status transition for the user.
func (s *Store) AppendStateHistory(ctx context.Context, userID string, state domain.AccountStatus, at time.Time) error {
	return s.conn(ctx).Create(&domain.UserStateHistory{
		ID:        uuid.NewString(),
		UserID:    userID,
		State:     string(state),
		ChangedAt: at.UTC(),
	}).Error
}

// ListDueDeletions returns ids of pending accounts whose purge is due at now,
// oldest deadline first.
func (s *Store) ListDueDeletions(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := s.conn(ctx).
		Model(&domain.User{}).
		Where("status = ? AND purge_scheduled_at IS NOT NULL AND purge_scheduled_at <= ?",
			domain.StatusPendingDeletion, now.UTC()).
		Order("purge_scheduled_at ASC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ListUnverifiedBefore returns active accounts that never verified an email and
// were created at or before cutoff.
func (s *Store) ListUnverifiedBefore(ctx context.Context, cutoff time.Time) ([]domain.User, error) {
	var out []domain.User
	err := s.conn(ctx).
		Where("status = ? AND email_verified_at IS NULL AND created_at <= ?",
			domain.StatusActive, cutoff.UTC()).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// PrimaryEmail returns the user's primary email contact, falling back to any
// email contact and finally to fallback.
func (s *Store) PrimaryEmail(ctx context.Context, userID, fallback string) (string, error) {
	var emails []string
	err := s.conn(ctx).
		Model(&domain.UserContact{}).
		Where("user_id = ? AND kind = ?", userID, domain.ContactEmail).
		Order("is_primary DESC, created_at ASC").
		Limit(1).
		Pluck("value", &emails).Error
	if err != nil {
		return "", err
	}
	if len(emails) == 1 && emails[0] != "" {
		return emails[0], nil
	}
	return fallback, nil
}

// SessionIDs lists the ids of the user's workout sessions.
func (s *Store) SessionIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.conn(ctx).
		Model(&domain.WorkoutSession{}).
		Where("user_id = ?", userID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// MediaKeys lists the object-store keys of the user's media objects.
func (s *Store) MediaKeys(ctx context.Context, userID string) ([]string, error) {
	var keys []string
	err := s.conn(ctx).
		Model(&domain.MediaObject{}).
		Where("user_id = ?", userID).
		Order("storage_key ASC").
		Pluck("storage_key", &keys).Error
	return keys, err
}

// CreateTombstone inserts the purge record, mapping a second tombstone for the
// same user to ErrDuplicate.
func (s *Store) CreateTombstone(ctx context.Context, t *domain.UserTombstone) error {
	if err := s.conn(ctx).Create(t).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetTombstone returns the tombstone for userID or ErrNotFound.
func (s *Store) GetTombstone(ctx context.Context, userID string) (*domain.UserTombstone, error) {
	var t domain.UserTombstone
	if err := s.conn(ctx).Where("user_id = ?", userID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
