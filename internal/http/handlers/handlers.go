// Package handlers implements the public HTTP API.
//
// Handlers are transport-thin: they validate input, call application services
// and translate results into HTTP responses. Mutations are replay-safe through
// the idempotency middleware in front of them, so handlers themselves are
// unaware of Idempotency-Key.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-fitness-backend/internal/domain"
	"github.com/tbourn/go-fitness-backend/internal/http/middleware"
	"github.com/tbourn/go-fitness-backend/internal/repo"
	"github.com/tbourn/go-fitness-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// AccountService is the account lifecycle surface exposed over HTTP.
type AccountService interface {
	// Get returns the account or services.ErrAccountNotFound.
	Get(ctx context.Context, userID string) (*domain.User, error)
	// ScheduleAccountDeletion moves the account to pending_deletion.
	ScheduleAccountDeletion(ctx context.Context, userID string, now time.Time) (services.DeletionSchedule, error)
	// CancelAccountDeletion restores a pending account.
	CancelAccountDeletion(ctx context.Context, userID string) error
}

// SessionService defines workout session operations.
type SessionService interface {
	Create(ctx context.Context, userID, title string, startedAt time.Time) (*domain.WorkoutSession, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.WorkoutSession, int64, error)
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
	AddExercise(ctx context.Context, userID, sessionID, name, muscleGroup string, sets []repo.SetInput) (*domain.SessionExercise, []domain.ExerciseSet, error)
}

//
// Handler wiring
//

// Handlers groups the account and session endpoints.
type Handlers struct {
	accounts AccountService
	sessions SessionService
	now      func() time.Time
}

// New constructs Handlers bound to the given services.
func New(accounts AccountService, sessions SessionService) *Handlers {
	return &Handlers{accounts: accounts, sessions: sessions, now: time.Now}
}

// WithClock overrides the clock used for scheduling. Tests only.
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	h.now = now
	return h
}

// userID returns the identity established by middleware.Identity. Routes are
// mounted behind Identity, so an empty id only happens in miswired tests.
func userID(c *gin.Context) string {
	uid, _ := middleware.UserID(c)
	return uid
}
