package domain

import "time"

// TombstoneMetadata summarizes what a purge removed.
type TombstoneMetadata struct {
	MediaObjectsRemoved int              `json:"media_objects_removed"`
	MediaObjectsFailed  int              `json:"media_objects_failed"`
	SessionCount        int              `json:"session_count"`
	RowsDeleted         map[string]int64 `json:"rows_deleted,omitempty"`
}

// UserTombstone is the permanent, minimal proof that an account was purged.
// It is written in the same transaction that deletes the account and is never
// updated or deleted afterwards.
type UserTombstone struct {
	ID               string            `json:"id"                  gorm:"type:char(36);primaryKey"`
	UserID           string            `json:"user_id"             gorm:"type:varchar(64);not null;uniqueIndex"`
	Username         string            `json:"username"            gorm:"type:varchar(64);not null"`
	Email            string            `json:"email"               gorm:"type:varchar(255)"`
	DeletedAt        time.Time         `json:"deleted_at"          gorm:"type:DATETIME;not null"`
	PurgedAt         time.Time         `json:"purged_at"           gorm:"type:DATETIME;not null;index"`
	BackupPurgeDueAt time.Time         `json:"backup_purge_due_at" gorm:"type:DATETIME;not null;index"`
	Metadata         TombstoneMetadata `json:"metadata"            gorm:"type:TEXT;serializer:json"`
}

// TableName implements the GORM tabler interface.
func (UserTombstone) TableName() string { return "user_tombstones" }
