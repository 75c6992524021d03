package audit

import (
	"context"

	"github.com/tbourn/go-fitness-backend/internal/domain"
	"github.com/tbourn/go-fitness-backend/internal/repo"
)

// DBSink writes events to the audit_logs table.
type DBSink struct {
	Store *repo.Store
}

// NewDBSink returns a sink backed by store.
func NewDBSink(store *repo.Store) *DBSink { return &DBSink{Store: store} }

func (s *DBSink) Emit(ctx context.Context, ev Event) error {
	return s.Store.InsertAuditLog(ctx, &domain.AuditLog{
		ActorUserID: ev.ActorUserID,
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		Action:      ev.Action,
		Metadata:    ev.Metadata,
		CreatedAt:   ev.OccurredAt,
	})
}
