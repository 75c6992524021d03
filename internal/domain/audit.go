package domain

import "time"

// AuditLog is one persisted audit event. ActorUserID is nulled when the actor's
// account is purged so the trail survives without the identity link.
type AuditLog struct {
	ID          string         `json:"id"                      gorm:"type:char(36);primaryKey"`
	ActorUserID *string        `json:"actor_user_id,omitempty" gorm:"type:varchar(64);index"`
	EntityType  string         `json:"entity_type"             gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:1"`
	EntityID    string         `json:"entity_id"               gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:2"`
	Action      string         `json:"action"                  gorm:"type:varchar(64);not null"`
	Metadata    map[string]any `json:"metadata,omitempty"      gorm:"type:TEXT;serializer:json"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TableName implements the GORM tabler interface.
func (AuditLog) TableName() string { return "audit_logs" }
