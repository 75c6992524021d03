// Package audit delivers structured audit events to one or more sinks.
//
// Audit delivery never fails the caller's operation: services call Emit, which
// logs and swallows sink errors. Sinks themselves do report errors so that
// Multi and tests can observe them.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Actions emitted by the account lifecycle.
const (
	ActionDeletionScheduled = "account.deletion_scheduled"
	ActionDeletionCancelled = "account.deletion_cancelled"
	ActionPurged            = "account.purged"

	EntityUser = "user"
)

// Event is one audit record.
type Event struct {
	ActorUserID *string        `json:"actor_user_id,omitempty"`
	EntityType  string         `json:"entity_type"`
	Action      string         `json:"action"`
	EntityID    string         `json:"entity_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Sink accepts audit events.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Discard drops all events.
type Discard struct{}

func (Discard) Emit(context.Context, Event) error { return nil }

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmitTimeout bounds one Emit call across all sinks.
var EmitTimeout = 2 * time.Second

// Emit sends ev to sink, stamping OccurredAt when unset. Delivery is detached
// from the caller's cancellation but bounded by EmitTimeout. Failures are
// logged and dropped.
func Emit(ctx context.Context, sink Sink, ev Event) {
	if sink == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), EmitTimeout)
	defer cancel()
	if err := sink.Emit(ctx, ev); err != nil {
		log.Warn().
			Err(err).
			Str("action", ev.Action).
			Str("entity_type", ev.EntityType).
			Str("entity_id", ev.EntityID).
			Msg("audit_emit_failed")
	}
}

// Actor returns a pointer to id, or nil when id is empty.
func Actor(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
