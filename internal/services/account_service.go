// Package services – AccountService
//
// AccountService owns the account deletion state machine:
//
//	active --Schedule--> pending_deletion --Execute--> (row gone, tombstone)
//	   ^                        |
//	   +--------Cancel----------+
//
// Scheduling is idempotent and never moves an existing deadline. Execution is
// the only code path that deletes an account row; it runs the whole cascade in
// one transaction so a failure leaves the account untouched and pending.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-fitness-backend/internal/audit"
	"github.com/tbourn/go-fitness-backend/internal/domain"
	"github.com/tbourn/go-fitness-backend/internal/repo"
	"github.com/tbourn/go-fitness-backend/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default grace periods.
const (
	DefaultPurgeDelay      = 30 * 24 * time.Hour
	DefaultBackupPurgeDays = 90
)

// DeletionSchedule is returned by ScheduleAccountDeletion.
type DeletionSchedule struct {
	ScheduledAt      time.Time `json:"scheduled_at"`
	PurgeDueAt       time.Time `json:"purge_due_at"`
	BackupPurgeDueAt time.Time `json:"backup_purge_due_at"`
}

// PurgeResult summarizes a completed purge.
type PurgeResult struct {
	UserID         string
	TombstoneID    string
	StorageRemoved int
	StorageFailed  int
	SessionCount   int
	Rows           repo.PurgeCounts
}

// AccountService implements scheduling, cancellation and execution of account
// deletion.
type AccountService struct {
	Store   *repo.Store
	Storage storage.Deleter
	Audit   audit.Sink

	PurgeDelay      time.Duration
	BackupPurgeDays int

	// Now is used for purge timestamps; defaults to time.Now.
	Now func() time.Time
}

// NewAccountService constructs an AccountService with default grace periods,
// no object store and no audit sink.
func NewAccountService(store *repo.Store) *AccountService {
	return &AccountService{
		Store:           store,
		Storage:         storage.Noop{},
		Audit:           audit.Discard{},
		PurgeDelay:      DefaultPurgeDelay,
		BackupPurgeDays: DefaultBackupPurgeDays,
		Now:             time.Now,
	}
}

// Get returns the account, mapping a missing row to ErrAccountNotFound.
func (s *AccountService) Get(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.Store.GetUser(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return u, err
}

// ScheduleAccountDeletion moves the account into pending_deletion. Timestamps
// already present are kept, so repeated calls return the same schedule.
func (s *AccountService) ScheduleAccountDeletion(ctx context.Context, userID string, now time.Time) (DeletionSchedule, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "ScheduleAccountDeletion",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	sch, changed, err := s.schedule(ctx, userID, now, s.PurgeDelay)
	if err != nil {
		return DeletionSchedule{}, err
	}
	if changed {
		s.emitScheduled(ctx, userID, userID, sch, "user_request")
	}
	return sch, nil
}

// ScheduleImmediatePurge schedules userID with a purge due at now. The
// retention sweep uses it for abandoned unverified registrations so that the
// purge executor stays the only deleter.
func (s *AccountService) ScheduleImmediatePurge(ctx context.Context, userID string, now time.Time, reason string) (DeletionSchedule, error) {
	sch, changed, err := s.schedule(ctx, userID, now, 0)
	if err != nil {
		return DeletionSchedule{}, err
	}
	if changed {
		s.emitScheduled(ctx, "", userID, sch, reason)
	}
	return sch, nil
}

func (s *AccountService) schedule(ctx context.Context, userID string, now time.Time, delay time.Duration) (DeletionSchedule, bool, error) {
	now = now.UTC()
	var (
		sch     DeletionSchedule
		changed bool
	)
	err := s.Store.Tx(ctx, func(tx *repo.Store) error {
		u, err := tx.GetUser(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		sch = DeletionSchedule{
			ScheduledAt:      pick(u.DeletedAt, now),
			PurgeDueAt:       pick(u.PurgeScheduledAt, now.Add(delay)),
			BackupPurgeDueAt: pick(u.BackupPurgeDueAt, now.AddDate(0, 0, s.BackupPurgeDays)),
		}
		if sch.PurgeDueAt.Before(sch.ScheduledAt) {
			sch.PurgeDueAt = sch.ScheduledAt
		}

		if u.PendingDeletion() && u.DeletedAt != nil && u.PurgeScheduledAt != nil && u.BackupPurgeDueAt != nil {
			return nil
		}

		if err := tx.MarkPendingDeletion(ctx, userID, repo.DeletionSchedule{
			DeletedAt:        sch.ScheduledAt,
			PurgeScheduledAt: sch.PurgeDueAt,
			BackupPurgeDueAt: sch.BackupPurgeDueAt,
		}); err != nil {
			return err
		}
		if !u.PendingDeletion() {
			if err := tx.AppendStateHistory(ctx, userID, domain.StatusPendingDeletion, now); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	return sch, changed, err
}

func (s *AccountService) emitScheduled(ctx context.Context, actor, userID string, sch DeletionSchedule, reason string) {
	audit.Emit(ctx, s.Audit, audit.Event{
		ActorUserID: audit.Actor(actor),
		EntityType:  audit.EntityUser,
		EntityID:    userID,
		Action:      audit.ActionDeletionScheduled,
		Metadata: map[string]any{
			"scheduled_at":        sch.ScheduledAt.Format(time.RFC3339),
			"purge_due_at":        sch.PurgeDueAt.Format(time.RFC3339),
			"backup_purge_due_at": sch.BackupPurgeDueAt.Format(time.RFC3339),
			"reason":              reason,
		},
	})
}

// CancelAccountDeletion returns a pending account to active and clears its
// schedule. It fails with ErrInvalidState when the account is not pending.
func (s *AccountService) CancelAccountDeletion(ctx context.Context, userID string) error {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "CancelAccountDeletion",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	err := s.Store.Tx(ctx, func(tx *repo.Store) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		ok, err := tx.ClearPendingDeletion(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidState
		}
		return tx.AppendStateHistory(ctx, userID, domain.StatusActive, s.now())
	})
	if err != nil {
		return err
	}

	audit.Emit(ctx, s.Audit, audit.Event{
		ActorUserID: audit.Actor(userID),
		EntityType:  audit.EntityUser,
		EntityID:    userID,
		Action:      audit.ActionDeletionCancelled,
	})
	return nil
}

// ExecuteAccountDeletion irreversibly purges a pending account.
//
// Object-store cleanup runs first and is best effort. The relational cascade,
// tombstone and account delete then run in one transaction; any failure there
// is returned as *PurgeError and leaves the account pending for the next
// sweep. ErrAccountNotFound and ErrInvalidState are returned without writes.
func (s *AccountService) ExecuteAccountDeletion(ctx context.Context, userID string) (PurgeResult, error) {
	tr := otel.Tracer("services/AccountService")
	ctx, span := tr.Start(ctx, "ExecuteAccountDeletion",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	res, err := s.execute(ctx, userID)
	switch {
	case err == nil:
		accountPurges.WithLabelValues("success").Inc()
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrInvalidState):
		accountPurges.WithLabelValues("skipped").Inc()
	default:
		accountPurges.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "purge failed")
	}
	return res, err
}

func (s *AccountService) execute(ctx context.Context, userID string) (PurgeResult, error) {
	res := PurgeResult{UserID: userID}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return res, err
	}
	if !u.PendingDeletion() {
		return res, ErrInvalidState
	}

	res.StorageRemoved, res.StorageFailed, err = s.cleanupStorage(ctx, u)
	if err != nil {
		return res, err
	}

	purgedAt := s.now()
	err = s.Store.Tx(ctx, func(tx *repo.Store) error {
		// Re-check inside the transaction: the account may have been cancelled
		// or purged by a concurrent caller since the first read.
		cur, err := tx.GetUser(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		if !cur.PendingDeletion() {
			return ErrInvalidState
		}

		email, err := tx.PrimaryEmail(ctx, userID, cur.Email)
		if err != nil {
			return err
		}
		sessions, err := tx.SessionIDs(ctx, userID)
		if err != nil {
			return err
		}
		res.SessionCount = len(sessions)

		res.Rows, err = tx.DeleteUserData(ctx, userID)
		if errors.Is(err, repo.ErrStateChanged) {
			return ErrInvalidState
		}
		if err != nil {
			return err
		}

		ts := &domain.UserTombstone{
			ID:               uuid.NewString(),
			UserID:           userID,
			Username:         cur.Username,
			Email:            email,
			DeletedAt:        pick(cur.DeletedAt, purgedAt),
			PurgedAt:         purgedAt,
			BackupPurgeDueAt: pick(cur.BackupPurgeDueAt, purgedAt),
			Metadata: domain.TombstoneMetadata{
				MediaObjectsRemoved: res.StorageRemoved,
				MediaObjectsFailed:  res.StorageFailed,
				SessionCount:        res.SessionCount,
				RowsDeleted:         res.Rows,
			},
		}
		if err := tx.CreateTombstone(ctx, ts); err != nil {
			return err
		}
		res.TombstoneID = ts.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrInvalidState) {
			return res, err
		}
		log.Error().Err(err).Str("user_id", userID).Msg("account_purge_failed")
		return res, &PurgeError{UserID: userID, Err: err}
	}

	log.Info().
		Str("user_id", userID).
		Str("tombstone_id", res.TombstoneID).
		Int("storage_removed", res.StorageRemoved).
		Int("storage_failed", res.StorageFailed).
		Int64("rows_deleted", res.Rows.Total()).
		Msg("account_purged")

	audit.Emit(ctx, s.Audit, audit.Event{
		EntityType: audit.EntityUser,
		EntityID:   userID,
		Action:     audit.ActionPurged,
		Metadata: map[string]any{
			"tombstone_id":          res.TombstoneID,
			"media_objects_removed": res.StorageRemoved,
			"media_objects_failed":  res.StorageFailed,
			"session_count":         res.SessionCount,
		},
	})
	return res, nil
}

// cleanupStorage deletes the avatar and every media blob. Individual failures
// are logged and counted; only a cancelled context or a failed key lookup is
// returned as an error.
func (s *AccountService) cleanupStorage(ctx context.Context, u *domain.User) (removed, failed int, err error) {
	keys, err := s.Store.MediaKeys(ctx, u.ID)
	if err != nil {
		return 0, 0, err
	}
	if u.AvatarKey != nil && *u.AvatarKey != "" {
		keys = append(keys, *u.AvatarKey)
	}

	store := s.Storage
	if store == nil {
		store = storage.Noop{}
	}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, failed, err
		}
		if derr := store.Delete(ctx, key); derr != nil {
			failed++
			log.Warn().Err(derr).Str("user_id", u.ID).Str("storage_key", key).Msg("storage_cleanup_failed")
			continue
		}
		removed++
	}
	return removed, failed, nil
}

func (s *AccountService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func pick(existing *time.Time, fallback time.Time) time.Time {
	if existing != nil {
		return existing.UTC()
	}
	return fallback
}
