// Package services – RetentionService
//
// RetentionService is the batch side of the lifecycle. Each sweep follows the
// same shape: find what is due at now, process it, report a summary. Account
// purges are processed one at a time; a failing account is logged, recorded
// and skipped. Systemic failures (cancelled context, unreachable database)
// abort the run because continuing would only repeat the same error.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-fitness-backend/internal/lock"
	"github.com/tbourn/go-fitness-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Sweep names, usable with SweepOptions.Only.
const (
	SweepUnverified  = "unverified"
	SweepAccounts    = "accounts"
	SweepIdempotency = "idempotency"
	SweepTokens      = "tokens"
)

// Sweeps lists every sweep in run order. Unverified accounts are scheduled
// before the account sweep so they are purged in the same run.
var Sweeps = []string{SweepUnverified, SweepAccounts, SweepIdempotency, SweepTokens}

const sweepLockName = "retention-sweep"

// AccountPurger is the part of AccountService the sweep drives.
type AccountPurger interface {
	ExecuteAccountDeletion(ctx context.Context, userID string) (PurgeResult, error)
	ScheduleImmediatePurge(ctx context.Context, userID string, now time.Time, reason string) (DeletionSchedule, error)
}

// SweepFailure records one item that could not be processed.
type SweepFailure struct {
	Sweep string `json:"sweep"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// SweepSummary is the structured result of Run.
type SweepSummary struct {
	Now                    time.Time      `json:"now"`
	StartedAt              time.Time      `json:"started_at"`
	FinishedAt             time.Time      `json:"finished_at"`
	Skipped                bool           `json:"skipped,omitempty"`
	UnverifiedScheduled    int            `json:"unverified_scheduled"`
	AccountsPurged         int            `json:"accounts_purged"`
	AccountsAlreadyGone    int            `json:"accounts_already_gone"`
	IdempotencyKeysDeleted int64          `json:"idempotency_keys_deleted"`
	TokensDeleted          int64          `json:"tokens_deleted"`
	Failures               []SweepFailure `json:"failures,omitempty"`
}

// Failed reports whether any item failed.
func (s *SweepSummary) Failed() bool { return len(s.Failures) > 0 }

// SweepOptions narrows a run.
type SweepOptions struct {
	// Only runs a single sweep when non-empty.
	Only string
}

// PartialFailureError is returned by ProcessDueAccountDeletions when some
// accounts failed but the sweep completed.
type PartialFailureError struct {
	Failures []SweepFailure
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d account purge(s) failed", len(e.Failures))
}

// RetentionService runs the retention sweeps.
type RetentionService struct {
	Store    *repo.Store
	Accounts AccountPurger
	Locker   lock.Locker

	IdempotencyTTL time.Duration
	UnverifiedTTL  time.Duration
	LockTTL        time.Duration

	// Clock for StartedAt/FinishedAt; defaults to time.Now.
	Clock func() time.Time
}

// NewRetentionService constructs a RetentionService with default TTLs and no
// distributed lock.
func NewRetentionService(store *repo.Store, accounts AccountPurger) *RetentionService {
	return &RetentionService{
		Store:          store,
		Accounts:       accounts,
		Locker:         lock.Noop{},
		IdempotencyTTL: 24 * time.Hour,
		UnverifiedTTL:  7 * 24 * time.Hour,
		LockTTL:        30 * time.Minute,
		Clock:          time.Now,
	}
}

// Run executes the selected sweeps at now. The returned error is non-nil only
// for systemic failures; per-item failures are reported in the summary.
func (s *RetentionService) Run(ctx context.Context, now time.Time, opts SweepOptions) (*SweepSummary, error) {
	now = now.UTC()
	sum := &SweepSummary{Now: now, StartedAt: s.clock()}
	defer func() { sum.FinishedAt = s.clock() }()

	selected := Sweeps
	if opts.Only != "" {
		if !validSweep(opts.Only) {
			return sum, fmt.Errorf("%w: unknown sweep %q", ErrInvalidInput, opts.Only)
		}
		selected = []string{opts.Only}
	}

	locker := s.Locker
	if locker == nil {
		locker = lock.Noop{}
	}
	release, err := locker.Acquire(ctx, sweepLockName, s.LockTTL)
	if errors.Is(err, lock.ErrHeld) {
		sum.Skipped = true
		log.Info().Msg("retention_sweep_skipped_lock_held")
		return sum, nil
	}
	if err != nil {
		return sum, &SystemicError{Err: fmt.Errorf("acquire sweep lock: %w", err)}
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			log.Warn().Err(rerr).Msg("retention_sweep_lock_release_failed")
		}
	}()

	for _, name := range selected {
		if err := s.runOne(ctx, name, now, sum); err != nil {
			return sum, err
		}
	}

	log.Info().
		Time("now", now).
		Int("unverified_scheduled", sum.UnverifiedScheduled).
		Int("accounts_purged", sum.AccountsPurged).
		Int64("idempotency_keys_deleted", sum.IdempotencyKeysDeleted).
		Int64("tokens_deleted", sum.TokensDeleted).
		Int("failures", len(sum.Failures)).
		Msg("retention_sweep_done")
	return sum, nil
}

func (s *RetentionService) runOne(ctx context.Context, name string, now time.Time, sum *SweepSummary) error {
	tr := otel.Tracer("services/RetentionService")
	ctx, span := tr.Start(ctx, "sweep."+name,
		trace.WithAttributes(attribute.String("sweep.now", now.Format(time.RFC3339))),
	)
	defer span.End()

	start := time.Now()
	defer func() { sweepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds()) }()

	var err error
	switch name {
	case SweepUnverified:
		var n int
		n, err = s.scheduleUnverified(ctx, now, sum)
		sum.UnverifiedScheduled += n
	case SweepAccounts:
		err = s.processDue(ctx, now, sum)
	case SweepIdempotency:
		var n int64
		n, err = s.PurgeExpiredIdempotencyKeys(ctx, now)
		sum.IdempotencyKeysDeleted += n
	case SweepTokens:
		var c repo.TokenPurgeCounts
		c, err = s.PurgeStaleTokens(ctx, now)
		sum.TokensDeleted += c.Total()
	}
	if err == nil {
		return nil
	}
	span.RecordError(err)

	var se *SystemicError
	if errors.As(err, &se) {
		return err
	}
	// The single-statement sweeps fail as a whole; decide whether the store
	// itself is gone before moving on to the next sweep.
	if serr := s.checkSystemic(ctx, err); serr != nil {
		return serr
	}
	sum.Failures = append(sum.Failures, SweepFailure{Sweep: name, Error: err.Error()})
	sweepItems.WithLabelValues(name, "failed").Inc()
	return nil
}

// ProcessDueAccountDeletions purges every pending account whose purge time is
// at or before now, sequentially. It returns the number purged. Individual
// failures yield a *PartialFailureError after all accounts were attempted;
// systemic failures abort immediately with a *SystemicError.
func (s *RetentionService) ProcessDueAccountDeletions(ctx context.Context, now time.Time) (int, error) {
	sum := &SweepSummary{Now: now.UTC()}
	if err := s.processDue(ctx, now.UTC(), sum); err != nil {
		return sum.AccountsPurged, err
	}
	if sum.Failed() {
		return sum.AccountsPurged, &PartialFailureError{Failures: sum.Failures}
	}
	return sum.AccountsPurged, nil
}

func (s *RetentionService) processDue(ctx context.Context, now time.Time, sum *SweepSummary) error {
	ids, err := s.Store.ListDueDeletions(ctx, now)
	if err != nil {
		return s.systemicOr(ctx, err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return &SystemicError{Err: err}
		}
		_, err := s.Accounts.ExecuteAccountDeletion(ctx, id)
		switch {
		case err == nil:
			sum.AccountsPurged++
			sweepItems.WithLabelValues(SweepAccounts, "purged").Inc()
		case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrInvalidState):
			// Purged or cancelled by someone else since the listing.
			sum.AccountsAlreadyGone++
			sweepItems.WithLabelValues(SweepAccounts, "skipped").Inc()
		default:
			if serr := s.checkSystemic(ctx, err); serr != nil {
				return serr
			}
			log.Error().Err(err).Str("user_id", id).Msg("retention_sweep_account_failed")
			sum.Failures = append(sum.Failures, SweepFailure{Sweep: SweepAccounts, ID: id, Error: err.Error()})
			sweepItems.WithLabelValues(SweepAccounts, "failed").Inc()
		}
	}
	return nil
}

// ScheduleUnverifiedAccounts schedules an immediate purge for active accounts
// that never verified an email within the unverified TTL. It returns the
// number scheduled; per-account failures yield a *PartialFailureError.
func (s *RetentionService) ScheduleUnverifiedAccounts(ctx context.Context, now time.Time) (int, error) {
	sum := &SweepSummary{Now: now.UTC()}
	n, err := s.scheduleUnverified(ctx, now.UTC(), sum)
	if err != nil {
		return n, err
	}
	if sum.Failed() {
		return n, &PartialFailureError{Failures: sum.Failures}
	}
	return n, nil
}

func (s *RetentionService) scheduleUnverified(ctx context.Context, now time.Time, sum *SweepSummary) (int, error) {
	users, err := s.Store.ListUnverifiedBefore(ctx, now.Add(-s.UnverifiedTTL))
	if err != nil {
		return 0, s.systemicOr(ctx, err)
	}
	n := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return n, &SystemicError{Err: err}
		}
		_, err := s.Accounts.ScheduleImmediatePurge(ctx, u.ID, now, "unverified_timeout")
		switch {
		case err == nil:
			n++
			sweepItems.WithLabelValues(SweepUnverified, "scheduled").Inc()
		case errors.Is(err, ErrAccountNotFound):
			sweepItems.WithLabelValues(SweepUnverified, "skipped").Inc()
		default:
			if serr := s.checkSystemic(ctx, err); serr != nil {
				return n, serr
			}
			log.Error().Err(err).Str("user_id", u.ID).Msg("retention_sweep_unverified_failed")
			sum.Failures = append(sum.Failures, SweepFailure{Sweep: SweepUnverified, ID: u.ID, Error: err.Error()})
			sweepItems.WithLabelValues(SweepUnverified, "failed").Inc()
		}
	}
	return n, nil
}

// PurgeExpiredIdempotencyKeys deletes idempotency records created at or before
// now minus the configured TTL.
func (s *RetentionService) PurgeExpiredIdempotencyKeys(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.Store.DeleteIdempotencyKeysBefore(ctx, now.Add(-s.IdempotencyTTL))
	if err != nil {
		return 0, err
	}
	sweepItems.WithLabelValues(SweepIdempotency, "deleted").Add(float64(n))
	return n, nil
}

// PurgeStaleTokens deletes expired or revoked credentials.
func (s *RetentionService) PurgeStaleTokens(ctx context.Context, now time.Time) (repo.TokenPurgeCounts, error) {
	c, err := s.Store.DeleteStaleTokens(ctx, now)
	if err != nil {
		return c, err
	}
	sweepItems.WithLabelValues(SweepTokens, "deleted").Add(float64(c.Total()))
	return c, nil
}

// checkSystemic returns a *SystemicError when cause stems from a cancelled
// context or the database no longer answers a ping; otherwise nil.
func (s *RetentionService) checkSystemic(ctx context.Context, cause error) error {
	if err := ctx.Err(); err != nil {
		return &SystemicError{Err: err}
	}
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return &SystemicError{Err: cause}
	}
	if perr := s.Store.Ping(ctx); perr != nil {
		return &SystemicError{Err: fmt.Errorf("%w (database unreachable: %v)", cause, perr)}
	}
	return nil
}

// systemicOr is used where a failure cannot be attributed to a single item.
func (s *RetentionService) systemicOr(ctx context.Context, err error) error {
	if serr := s.checkSystemic(ctx, err); serr != nil {
		return serr
	}
	return err
}

func (s *RetentionService) clock() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

func validSweep(name string) bool {
	for _, s := range Sweeps {
		if s == name {
			return true
		}
	}
	return false
}
