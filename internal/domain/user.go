// Package domain defines the persistence models for accounts and the data they
// own. These types are mapped with GORM and shared by the repository and
// service layers.
package domain

import "time"

// AccountStatus drives the account deletion state machine. A purged account has
// no status at all: its row is gone and a UserTombstone replaces it.
type AccountStatus string

const (
	StatusActive          AccountStatus = "active"
	StatusPendingDeletion AccountStatus = "pending_deletion"
)

// User is the account entity. Only the purge executor may delete the row.
//
// Fields:
//   - Status: active or pending_deletion.
//   - DeletedAt: when deletion was scheduled (not a soft-delete marker).
//   - PurgeScheduledAt: when the purge becomes eligible for the retention sweep.
//   - BackupPurgeDueAt: when off-line backups must also be scrubbed.
//   - AvatarKey: object-store key of the current avatar, if any.
//
// When Status is pending_deletion all three deletion timestamps are set and
// PurgeScheduledAt is not before DeletedAt.
type User struct {
	ID               string        `json:"id"                           gorm:"type:varchar(64);primaryKey"`
	Username         string        `json:"username"                     gorm:"type:varchar(64);not null;uniqueIndex"`
	Email            string        `json:"email"                        gorm:"type:varchar(255);not null"`
	Status           AccountStatus `json:"status"                       gorm:"type:varchar(32);not null;default:'active';index:idx_users_status_purge,priority:1;check:status IN ('active','pending_deletion')"`
	AvatarKey        *string       `json:"-"                            gorm:"type:varchar(512)"`
	EmailVerifiedAt  *time.Time    `json:"email_verified_at,omitempty"`
	DeletedAt        *time.Time    `json:"deleted_at,omitempty"`
	PurgeScheduledAt *time.Time    `json:"purge_scheduled_at,omitempty" gorm:"index:idx_users_status_purge,priority:2"`
	BackupPurgeDueAt *time.Time    `json:"backup_purge_due_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// PendingDeletion reports whether the account is scheduled for purge.
func (u *User) PendingDeletion() bool { return u != nil && u.Status == StatusPendingDeletion }
