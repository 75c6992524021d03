package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-fitness-backend/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	// Be tolerant across platforms/drivers.
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestDSN_CarriesPragmas(t *testing.T) {
	dsn := DSN("/tmp/x.db")
	if !strings.HasPrefix(dsn, "file:/tmp/x.db?") {
		t.Fatalf("unexpected DSN prefix: %q", dsn)
	}
	for _, want := range []string{"foreign_keys%281%29", "busy_timeout%285000%29", "journal_mode%28WAL%29"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("DSN %q missing %q", dsn, want)
		}
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var (
		journalMode string
		syncVal     int
		fkOn        int
		busyMS      int
	)

	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}
	if err := db.Raw("PRAGMA synchronous;").Row().Scan(&syncVal); err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	// NORMAL == 1
	if syncVal != 1 {
		t.Fatalf("expected synchronous=1 (NORMAL), got %d", syncVal)
	}
	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}

	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range Models() {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Quick insert round-trip to prove schema is usable.
	now := time.Now().UTC()
	u := &domain.User{ID: "u1", Username: "alice", Email: "a@example.com", CreatedAt: now, UpdatedAt: now}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}
	var got domain.User
	if err := db.First(&got, "id = ?", "u1").Error; err != nil || got.Status != domain.StatusActive {
		t.Fatalf("readback user failed: err=%v got=%+v", err, got)
	}
}

func TestStore_Tx_CommitAndRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Tx(ctx, func(tx *Store) error {
		return tx.CreateUser(ctx, &domain.User{ID: "u1", Username: "a", Email: "a@x"})
	})
	if err != nil {
		t.Fatalf("commit tx: %v", err)
	}
	if _, err := s.GetUser(ctx, "u1"); err != nil {
		t.Fatalf("committed user missing: %v", err)
	}

	boom := os.ErrInvalid
	err = s.Tx(ctx, func(tx *Store) error {
		if err := tx.CreateUser(ctx, &domain.User{ID: "u2", Username: "b", Email: "b@x"}); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("expected tx error to propagate, got %v", err)
	}
	if _, err := s.GetUser(ctx, "u2"); err != ErrNotFound {
		t.Fatalf("rolled back user should be absent, got %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
