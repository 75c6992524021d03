package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-fitness-backend/internal/domain"
)

// InsertAuditLog persists one audit entry, filling ID and CreatedAt if empty.
func (s *Store) InsertAuditLog(ctx context.Context, l *domain.AuditLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return s.conn(ctx).Create(l).Error
}

// ListAuditLogs returns entries for an entity, oldest first.
func (s *Store) ListAuditLogs(ctx context.Context, entityType, entityID string) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	err := s.conn(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
