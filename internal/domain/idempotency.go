package domain

import "time"

// IdempotencyKey records one client-submitted mutation attempt, keyed by
// (user_id, method, route, client_key). It enables safe retries of unsafe
// requests by replaying the originally produced response without re-executing
// side effects.
//
// A row is inserted once, the first time a key is seen, with ResponseStatus
// nil. The owner of that attempt attaches the response exactly once. Rows with
// a nil ResponseStatus are either still in flight or belong to an attempt that
// crashed before completing; they are removed by the retention sweep.
type IdempotencyKey struct {
	ID              string            `gorm:"type:char(36);primaryKey"`
	UserID          string            `gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_scope,priority:1"`
	Method          string            `gorm:"type:varchar(16);not null;uniqueIndex:ux_idem_scope,priority:2"`
	Route           string            `gorm:"type:varchar(255);not null;uniqueIndex:ux_idem_scope,priority:3"`
	ClientKey       string            `gorm:"type:varchar(255);not null;uniqueIndex:ux_idem_scope,priority:4"`
	RequestHash     string            `gorm:"type:char(64);not null"`
	ResponseStatus  *int              `gorm:"type:INTEGER"`
	ResponseBody    []byte            `gorm:"type:BLOB"`
	ResponseHeaders map[string]string `gorm:"type:TEXT;serializer:json"` // replayable subset only
	CreatedAt       time.Time         `gorm:"type:DATETIME;not null;index"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyKey) TableName() string { return "idempotency_keys" }

// Completed reports whether a response has been attached to the record.
func (k *IdempotencyKey) Completed() bool { return k != nil && k.ResponseStatus != nil }

// IdempotencyScope identifies one idempotency record. Keys are scoped per user,
// method and route so the same client key can be reused across endpoints.
type IdempotencyScope struct {
	UserID    string
	Method    string
	Route     string
	ClientKey string
}
