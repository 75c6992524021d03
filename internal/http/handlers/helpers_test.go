package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/tbourn/go-fitness-backend/internal/domain"
	"github.com/tbourn/go-fitness-backend/internal/http/middleware"
	"github.com/tbourn/go-fitness-backend/internal/repo"
)

// newHandlerStore returns a Store over a private, migrated in-memory database.
func newHandlerStore(t *testing.T) *repo.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := gorm.Open(sqlite.Open(dsn), repo.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.NewStore(db)
}

func seedUser(t *testing.T, store *repo.Store, id string) {
	t.Helper()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.CreateUser(context.Background(), &domain.User{
		ID: id, Username: "user-" + id, Email: id + "@example.com",
		EmailVerifiedAt: &created, CreatedAt: created, UpdatedAt: created,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

// newTestRouter mounts h behind RequestID and header identity, like the real
// router does for /api/v1.
func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Identity(middleware.IdentityOptions{AllowHeader: true}))
	r.GET("/account", h.GetAccount)
	r.POST("/account/deletion", h.ScheduleDeletion)
	r.DELETE("/account/deletion", h.CancelDeletion)
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions", h.ListSessions)
	r.POST("/sessions/:id/exercises", h.AddExercise)
	return r
}

func do(r http.Handler, method, path, user string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, user)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}
