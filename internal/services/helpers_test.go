package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"

	"github.com/tbourn/go-fitness-backend/internal/audit"
	"github.com/tbourn/go-fitness-backend/internal/domain"
	"github.com/tbourn/go-fitness-backend/internal/repo"
)

// newTestStore returns a Store over a private, fully migrated in-memory DB.
func newTestStore(t *testing.T) *repo.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), repo.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return repo.NewStore(db)
}

// newFileStore opens a real on-disk database with the production settings,
// for tests that need concurrent connections.
func newFileStore(t *testing.T) *repo.Store {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return repo.NewStore(db)
}

func mustCreate(t *testing.T, db *gorm.DB, rows ...any) {
	t.Helper()
	for _, r := range rows {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed %T: %v", r, err)
		}
	}
}

func seedActiveUser(t *testing.T, store *repo.Store, id string) {
	t.Helper()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	verified := created
	mustCreate(t, store.DB(), &domain.User{
		ID: id, Username: "user-" + id, Email: strings.ToUpper(id) + "@Example.com",
		Status: domain.StatusActive, EmailVerifiedAt: &verified, CreatedAt: created, UpdatedAt: created,
	})
}

// seedOwned writes rows into the user's owned tables, including a session with
// an exercise and sets, two media objects and an audit entry.
func seedOwned(t *testing.T, store *repo.Store, userID string) {
	t.Helper()
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	p := func(s string) string { return userID + "-" + s }
	mustCreate(t, store.DB(),
		&domain.WorkoutSession{ID: p("s1"), UserID: userID, Title: "Push", StartedAt: now},
		&domain.Exercise{ID: p("e1"), UserID: userID, Name: "Bench"},
		&domain.SessionExercise{ID: p("se1"), SessionID: p("s1"), ExerciseID: p("e1"), Position: 1},
		&domain.ExerciseSet{ID: p("set1"), SessionExerciseID: p("se1"), Reps: 5},
		&domain.TrainingPlan{ID: p("tp1"), UserID: userID, Name: "5x5"},
		&domain.BodyMetric{ID: p("bm1"), UserID: userID, Kind: "weight", Value: 80, RecordedAt: now},
		&domain.UserContact{ID: p("c1"), UserID: userID, Kind: domain.ContactEmail, Value: "Primary." + userID + "@Example.com", IsPrimary: true},
		&domain.UserProfile{UserID: userID, DisplayName: "Athlete"},
		&domain.UserPoint{ID: p("pt1"), UserID: userID, Points: 10},
		&domain.UserBadge{ID: p("b1"), UserID: userID, BadgeCode: "first"},
		&domain.MediaObject{ID: p("m1"), UserID: userID, StorageKey: "media/" + userID + "/1.jpg"},
		&domain.MediaObject{ID: p("m2"), UserID: userID, StorageKey: "media/" + userID + "/2.jpg"},
		&domain.AuthToken{ID: p("at1"), UserID: userID, Purpose: "reset", TokenHash: fmt.Sprintf("%064s", p("at1")), ExpiresAt: now},
		&domain.RefreshToken{ID: p("rt1"), UserID: userID, TokenHash: fmt.Sprintf("%064s", p("rt1")), ExpiresAt: now},
		&domain.AuthSession{ID: p("as1"), UserID: userID, ExpiresAt: now},
		&domain.IdempotencyKey{ID: p("ik1"), UserID: userID, Method: "POST", Route: "/r", ClientKey: "k", RequestHash: "h", CreatedAt: now},
	)
}

type fakeStorage struct {
	mu      sync.Mutex
	deleted []string
	failOn  map[string]bool
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[key] {
		return fmt.Errorf("storage unavailable for %s", key)
	}
	f.deleted = append(f.deleted, key)
	return nil
}

type recAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recAudit) Emit(_ context.Context, ev audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

func newAccountService(store *repo.Store) (*AccountService, *fakeStorage, *recAudit) {
	st := &fakeStorage{failOn: map[string]bool{}}
	au := &recAudit{}
	svc := NewAccountService(store)
	svc.Storage = st
	svc.Audit = au
	return svc, st, au
}
