package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/go-fitness-backend/internal/domain"
	"github.com/tbourn/go-fitness-backend/internal/lock"
	"github.com/tbourn/go-fitness-backend/internal/repo"
)

// flakyPurger fails ExecuteAccountDeletion for selected ids and delegates the
// rest to a real AccountService.
type flakyPurger struct {
	*AccountService
	fail  map[string]bool
	calls []string
}

func (f *flakyPurger) ExecuteAccountDeletion(ctx context.Context, userID string) (PurgeResult, error) {
	f.calls = append(f.calls, userID)
	if f.fail[userID] {
		return PurgeResult{}, &PurgeError{UserID: userID, Err: errors.New("disk full")}
	}
	return f.AccountService.ExecuteAccountDeletion(ctx, userID)
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string, time.Duration) (lock.Release, error) {
	return nil, lock.ErrHeld
}

type countingLocker struct{ acquired, released int }

func (c *countingLocker) Acquire(context.Context, string, time.Duration) (lock.Release, error) {
	c.acquired++
	return func(context.Context) error { c.released++; return nil }, nil
}

func schedulePending(t *testing.T, store *repo.Store, id string, purgeAt time.Time) {
	t.Helper()
	if err := store.MarkPendingDeletion(context.Background(), id, repo.DeletionSchedule{
		DeletedAt:        purgeAt.Add(-time.Hour),
		PurgeScheduledAt: purgeAt,
		BackupPurgeDueAt: purgeAt.AddDate(0, 0, 90),
	}); err != nil {
		t.Fatalf("MarkPendingDeletion(%s): %v", id, err)
	}
}

func TestProcessDueAccountDeletions_DueBoundary(t *testing.T) {
	store := newTestStore(t)
	now := t0
	for id, at := range map[string]time.Time{
		"past":   now.Add(-time.Second),
		"exact":  now,
		"future": now.Add(time.Second),
	} {
		seedActiveUser(t, store, id)
		seedOwned(t, store, id)
		schedulePending(t, store, id, at)
	}
	seedActiveUser(t, store, "active")

	accounts, _, _ := newAccountService(store)
	svc := NewRetentionService(store, accounts)

	n, err := svc.ProcessDueAccountDeletions(context.Background(), now)
	if err != nil {
		t.Fatalf("ProcessDueAccountDeletions: %v", err)
	}
	if n != 2 {
		t.Fatalf("purged = %d; want 2", n)
	}
	for _, id := range []string{"past", "exact"} {
		if _, err := store.GetUser(context.Background(), id); !errors.Is(err, repo.ErrNotFound) {
			t.Fatalf("%s should be purged, got %v", id, err)
		}
		if _, err := store.GetTombstone(context.Background(), id); err != nil {
			t.Fatalf("%s tombstone: %v", id, err)
		}
	}
	for _, id := range []string{"future", "active"} {
		if _, err := store.GetUser(context.Background(), id); err != nil {
			t.Fatalf("%s must survive: %v", id, err)
		}
	}
}

func TestRun_ExampleScenario(t *testing.T) {
	store := newTestStore(t)
	seedActiveUser(t, store, "U1")
	seedOwned(t, store, "U1")
	accounts, _, _ := newAccountService(store)
	accounts.PurgeDelay = 60 * time.Minute
	ctx := context.Background()

	if _, err := accounts.ScheduleAccountDeletion(ctx, "U1", t0); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	svc := NewRetentionService(store, accounts)

	// Not yet due.
	sum, err := svc.Run(ctx, t0.Add(59*time.Minute), SweepOptions{Only: SweepAccounts})
	if err != nil || sum.AccountsPurged != 0 {
		t.Fatalf("early run: %+v err=%v", sum, err)
	}

	sum, err = svc.Run(ctx, t0.Add(61*time.Minute), SweepOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.AccountsPurged != 1 || sum.Failed() {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	var sessions int64
	store.DB().Model(&domain.WorkoutSession{}).Where("user_id = ?", "U1").Count(&sessions)
	if sessions != 0 {
		t.Fatalf("sessions survived: %d", sessions)
	}
	if sum.FinishedAt.Before(sum.StartedAt) {
		t.Fatalf("timestamps out of order: %+v", sum)
	}
}

func TestRun_OneFailureDoesNotStopOthers(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		seedActiveUser(t, store, id)
		schedulePending(t, store, id, t0.Add(-time.Minute))
	}
	accounts, _, _ := newAccountService(store)
	fp := &flakyPurger{AccountService: accounts, fail: map[string]bool{"b": true}}
	svc := NewRetentionService(store, fp)

	sum, err := svc.Run(context.Background(), t0, SweepOptions{Only: SweepAccounts})
	if err != nil {
		t.Fatalf("item failure must not abort the run: %v", err)
	}
	if len(fp.calls) != 3 {
		t.Fatalf("expected all three attempted, got %v", fp.calls)
	}
	if sum.AccountsPurged != 2 || len(sum.Failures) != 1 || sum.Failures[0].ID != "b" || sum.Failures[0].Sweep != SweepAccounts {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	u, err := store.GetUser(context.Background(), "b")
	if err != nil || !u.PendingDeletion() {
		t.Fatalf("failed account must stay pending: %+v err=%v", u, err)
	}

	// The next run retries it.
	fp.fail = nil
	n, err := svc.ProcessDueAccountDeletions(context.Background(), t0)
	if err != nil || n != 1 {
		t.Fatalf("retry: n=%d err=%v", n, err)
	}
}

func TestProcessDueAccountDeletions_PartialFailure(t *testing.T) {
	store := newTestStore(t)
	seedActiveUser(t, store, "a")
	seedActiveUser(t, store, "b")
	schedulePending(t, store, "a", t0)
	schedulePending(t, store, "b", t0)
	accounts, _, _ := newAccountService(store)
	svc := NewRetentionService(store, &flakyPurger{AccountService: accounts, fail: map[string]bool{"a": true}})

	n, err := svc.ProcessDueAccountDeletions(context.Background(), t0)
	var pf *PartialFailureError
	if !errors.As(err, &pf) || len(pf.Failures) != 1 || pf.Failures[0].ID != "a" {
		t.Fatalf("expected PartialFailureError for a, got %v", err)
	}
	if n != 1 {
		t.Fatalf("purged = %d; want 1", n)
	}
}

func TestRun_AlreadyGoneIsNotAFailure(t *testing.T) {
	store := newTestStore(t)
	seedActiveUser(t, store, "a")
	schedulePending(t, store, "a", t0)
	accounts, _, _ := newAccountService(store)

	// A purger that sees the account cancelled between listing and executing.
	racer := &cancellingPurger{AccountService: accounts}
	svc := NewRetentionService(store, racer)
	sum, err := svc.Run(context.Background(), t0, SweepOptions{Only: SweepAccounts})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.AccountsAlreadyGone != 1 || sum.AccountsPurged != 0 || sum.Failed() {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	u, _ := store.GetUser(context.Background(), "a")
	if u.Status != domain.StatusActive {
		t.Fatalf("cancelled account must survive as active, got %s", u.Status)
	}
}

type cancellingPurger struct {
	*AccountService
}

func (c *cancellingPurger) ExecuteAccountDeletion(ctx context.Context, userID string) (PurgeResult, error) {
	if err := c.AccountService.CancelAccountDeletion(ctx, userID); err != nil {
		return PurgeResult{}, err
	}
	return c.AccountService.ExecuteAccountDeletion(ctx, userID)
}

func TestRun_CancelledContextIsSystemic(t *testing.T) {
	store := newTestStore(t)
	seedActiveUser(t, store, "a")
	schedulePending(t, store, "a", t0)
	accounts, _, _ := newAccountService(store)
	svc := NewRetentionService(store, accounts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Run(ctx, t0, SweepOptions{})
	var se *SystemicError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SystemicError, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("systemic errors are retryable")
	}
	if _, err := store.GetUser(context.Background(), "a"); err != nil {
		t.Fatalf("account must survive an aborted run: %v", err)
	}
}

func TestRun_ClosedDatabaseIsSystemic(t *testing.T) {
	store := newTestStore(t)
	accounts, _, _ := newAccountService(store)
	svc := NewRetentionService(store, accounts)

	sqlDB, _ := store.DB().DB()
	_ = sqlDB.Close()

	_, err := svc.Run(context.Background(), t0, SweepOptions{Only: SweepIdempotency})
	var se *SystemicError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SystemicError, got %v", err)
	}
}

func TestRun_LockHeldSkips(t *testing.T) {
	store := newTestStore(t)
	seedActiveUser(t, store, "a")
	schedulePending(t, store, "a", t0)
	accounts, _, _ := newAccountService(store)
	svc := NewRetentionService(store, accounts)
	svc.Locker = heldLocker{}

	sum, err := svc.Run(context.Background(), t0, SweepOptions{})
	if err != nil || !sum.Skipped {
		t.Fatalf("expected skipped run, got %+v err=%v", sum, err)
	}
	if _, err := store.GetUser(context.Background(), "a"); err != nil {
		t.Fatalf("skipped run must not purge: %v", err)
	}
}

func TestRun_ReleasesLock(t *testing.T) {
	store := newTestStore(t)
	accounts, _, _ := newAccountService(store)
	svc := NewRetentionService(store, accounts)
	cl := &countingLocker{}
	svc.Locker = cl

	if _, err := svc.Run(context.Background(), t0, SweepOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cl.acquired != 1 || cl.released != 1 {
		t.Fatalf("lock acquired=%d released=%d", cl.acquired, cl.released)
	}
}

func TestRun_OnlyValidation(t *testing.T) {
	store := newTestStore(t)
	accounts, _, _ := newAccountService(store)
	svc := NewRetentionService(store, accounts)

	if _, err := svc.Run(context.Background(), t0, SweepOptions{Only: "everything"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	for _, name := range Sweeps {
		if _, err := svc.Run(context.Background(), t0, SweepOptions{Only: name}); err != nil {
			t.Fatalf("Only=%s: %v", name, err)
		}
	}
}

func TestRun_UnverifiedScheduledAndPurgedSameRun(t *testing.T) {
	store := newTestStore(t)
	created := t0.Add(-8 * 24 * time.Hour)
	recent := t0.Add(-time.Hour)
	mustCreate(t, store.DB(),
		&domain.User{ID: "stale", Username: "stale", Email: "s@example.com", Status: domain.StatusActive, CreatedAt: created, UpdatedAt: created},
		&domain.User{ID: "fresh", Username: "fresh", Email: "f@example.com", Status: domain.StatusActive, CreatedAt: recent, UpdatedAt: recent},
	)
	accounts, _, au := newAccountService(store)
	svc := NewRetentionService(store, accounts)

	sum, err := svc.Run(context.Background(), t0, SweepOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.UnverifiedScheduled != 1 || sum.AccountsPurged != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if _, err := store.GetTombstone(context.Background(), "stale"); err != nil {
		t.Fatalf("stale tombstone: %v", err)
	}
	if _, err := store.GetUser(context.Background(), "fresh"); err != nil {
		t.Fatalf("fresh must survive: %v", err)
	}
	if ev := au.events[0]; ev.ActorUserID != nil || ev.Metadata["reason"] != "unverified_timeout" {
		t.Fatalf("unexpected scheduling event: %+v", ev)
	}
}

func TestRun_IdempotencyAndTokenSweeps(t *testing.T) {
	store := newTestStore(t)
	seedActiveUser(t, store, "u1")
	revoked := t0.Add(-time.Minute)
	mustCreate(t, store.DB(),
		&domain.IdempotencyKey{ID: "old", UserID: "u1", Method: "POST", Route: "/r", ClientKey: "old", RequestHash: "h", CreatedAt: t0.Add(-25 * time.Hour)},
		&domain.IdempotencyKey{ID: "edge", UserID: "u1", Method: "POST", Route: "/r", ClientKey: "edge", RequestHash: "h", CreatedAt: t0.Add(-24 * time.Hour)},
		&domain.IdempotencyKey{ID: "new", UserID: "u1", Method: "POST", Route: "/r", ClientKey: "new", RequestHash: "h", CreatedAt: t0.Add(-time.Hour)},
		&domain.AuthToken{ID: "at-old", UserID: "u1", Purpose: "reset", TokenHash: fmt.Sprintf("%064d", 1), ExpiresAt: t0.Add(-time.Second)},
		&domain.AuthToken{ID: "at-live", UserID: "u1", Purpose: "reset", TokenHash: fmt.Sprintf("%064d", 2), ExpiresAt: t0.Add(time.Hour)},
		&domain.RefreshToken{ID: "rt-revoked", UserID: "u1", TokenHash: fmt.Sprintf("%064d", 3), ExpiresAt: t0.Add(time.Hour), RevokedAt: &revoked},
		&domain.RefreshToken{ID: "rt-live", UserID: "u1", TokenHash: fmt.Sprintf("%064d", 4), ExpiresAt: t0.Add(time.Hour)},
	)
	accounts, _, _ := newAccountService(store)
	svc := NewRetentionService(store, accounts)

	sum, err := svc.Run(context.Background(), t0, SweepOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.IdempotencyKeysDeleted != 2 {
		t.Fatalf("idempotency deleted = %d; want 2", sum.IdempotencyKeysDeleted)
	}
	if sum.TokensDeleted != 2 {
		t.Fatalf("tokens deleted = %d; want 2", sum.TokensDeleted)
	}
	var left int64
	store.DB().Model(&domain.IdempotencyKey{}).Count(&left)
	if left != 1 {
		t.Fatalf("idempotency rows left = %d; want 1", left)
	}
}

func TestScheduleUnverifiedAccounts_LeavesPurgeToExecutor(t *testing.T) {
	store := newTestStore(t)
	created := t0.Add(-7 * 24 * time.Hour)
	mustCreate(t, store.DB(),
		&domain.User{ID: "edge", Username: "edge", Email: "e@example.com", Status: domain.StatusActive, CreatedAt: created, UpdatedAt: created},
	)
	accounts, _, _ := newAccountService(store)
	svc := NewRetentionService(store, accounts)

	n, err := svc.ScheduleUnverifiedAccounts(context.Background(), t0)
	if err != nil || n != 1 {
		t.Fatalf("ScheduleUnverifiedAccounts = %d, %v", n, err)
	}
	u, err := store.GetUser(context.Background(), "edge")
	if err != nil {
		t.Fatalf("user must still exist until the purge runs: %v", err)
	}
	if u.Status != domain.StatusPendingDeletion || u.PurgeScheduledAt == nil || !u.PurgeScheduledAt.Equal(t0) {
		t.Fatalf("unexpected schedule: status=%s purge=%v", u.Status, u.PurgeScheduledAt)
	}

	n, err = svc.ScheduleUnverifiedAccounts(context.Background(), t0)
	if err != nil || n != 0 {
		t.Fatalf("second run = %d, %v; pending accounts are not re-listed", n, err)
	}
}
