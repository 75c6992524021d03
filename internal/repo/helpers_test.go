package repo

import (
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"

	"github.com/tbourn/go-fitness-backend/internal/domain"
)

// newTestDB opens a private in-memory database. A single connection keeps the
// foreign_keys pragma and the shared-cache schema consistent for every query.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// newTestStore returns a Store over a fully migrated database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(newTestDB(t, Models()...))
}

func mustCreate(t *testing.T, db *gorm.DB, rows ...any) {
	t.Helper()
	for _, r := range rows {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed %T: %v", r, err)
		}
	}
}

func seedUser(t *testing.T, db *gorm.DB, id string, status domain.AccountStatus) *domain.User {
	t.Helper()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	u := &domain.User{
		ID:        id,
		Username:  "user-" + id,
		Email:     id + "@example.com",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == domain.StatusPendingDeletion {
		due := now.Add(time.Hour)
		backup := now.Add(90 * 24 * time.Hour)
		u.DeletedAt, u.PurgeScheduledAt, u.BackupPurgeDueAt = &now, &due, &backup
	}
	mustCreate(t, db, u)
	return u
}

// seedOwnedGraph writes one row into every owned table for userID. other is a
// second account used for follow edges in both directions.
func seedOwnedGraph(t *testing.T, db *gorm.DB, userID, other string) {
	t.Helper()
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	p := func(s string) string { return userID + "-" + s }
	mustCreate(t, db,
		&domain.WorkoutSession{ID: p("s1"), UserID: userID, Title: "Push", StartedAt: now, CreatedAt: now, UpdatedAt: now},
		&domain.WorkoutSession{ID: p("s2"), UserID: userID, Title: "Pull", StartedAt: now, CreatedAt: now, UpdatedAt: now},
		&domain.Exercise{ID: p("e1"), UserID: userID, Name: "Bench", CreatedAt: now},
		&domain.SessionExercise{ID: p("se1"), SessionID: p("s1"), ExerciseID: p("e1"), Position: 1, CreatedAt: now},
		&domain.ExerciseSet{ID: p("set1"), SessionExerciseID: p("se1"), Reps: 5, WeightKg: 80, CreatedAt: now},
		&domain.ExerciseSet{ID: p("set2"), SessionExerciseID: p("se1"), Reps: 5, WeightKg: 85, CreatedAt: now},
		&domain.TrainingPlan{ID: p("tp1"), UserID: userID, Name: "5x5", CreatedAt: now},
		&domain.BodyMetric{ID: p("bm1"), UserID: userID, Kind: "weight", Value: 80, RecordedAt: now},
		&domain.UserContact{ID: p("c1"), UserID: userID, Kind: domain.ContactEmail, Value: "primary-" + userID + "@example.com", IsPrimary: true, CreatedAt: now},
		&domain.UserProfile{UserID: userID, DisplayName: "Athlete", UpdatedAt: now},
		&domain.UserStateHistory{ID: p("h1"), UserID: userID, State: "active", ChangedAt: now},
		&domain.UserPoint{ID: p("pt1"), UserID: userID, Points: 10, CreatedAt: now},
		&domain.UserBadge{ID: p("b1"), UserID: userID, BadgeCode: "first_workout", AwardedAt: now},
		&domain.MediaObject{ID: p("m1"), UserID: userID, StorageKey: "media/" + userID + "/1.jpg", CreatedAt: now},
		&domain.AuthToken{ID: p("at1"), UserID: userID, Purpose: "verify", TokenHash: fmt.Sprintf("%064s", p("at1")), ExpiresAt: now.Add(time.Hour), CreatedAt: now},
		&domain.RefreshToken{ID: p("rt1"), UserID: userID, TokenHash: fmt.Sprintf("%064s", p("rt1")), ExpiresAt: now.Add(time.Hour), CreatedAt: now},
		&domain.AuthSession{ID: p("as1"), UserID: userID, ExpiresAt: now.Add(time.Hour), LastSeenAt: now, CreatedAt: now},
		&domain.IdempotencyKey{ID: p("ik1"), UserID: userID, Method: "POST", Route: "/api/v1/sessions", ClientKey: "k", RequestHash: "h", CreatedAt: now},
	)
	if other != "" {
		mustCreate(t, db,
			&domain.UserFollow{FollowerID: userID, FolloweeID: other, CreatedAt: now},
			&domain.UserFollow{FollowerID: other, FolloweeID: userID, CreatedAt: now},
		)
	}
}
