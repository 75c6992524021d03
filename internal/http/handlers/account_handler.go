// Account HTTP handlers.
//
// This file exposes the "delete my account" lifecycle:
//   - GET    /account            (current status and schedule)
//   - POST   /account/deletion   (schedule, 202)
//   - DELETE /account/deletion   (cancel)
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-fitness-backend/internal/domain"
	"github.com/tbourn/go-fitness-backend/internal/services"
)

// AccountResponse describes the caller's account lifecycle state.
type AccountResponse struct {
	ID               string     `json:"id"                            example:"u-123"`
	Status           string     `json:"status"                        example:"pending_deletion"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
	PurgeScheduledAt *time.Time `json:"purge_scheduled_at,omitempty"`
	BackupPurgeDueAt *time.Time `json:"backup_purge_due_at,omitempty"`
}

// DeletionScheduledResponse is returned when deletion is scheduled.
type DeletionScheduledResponse struct {
	Status           string    `json:"status"              example:"pending_deletion"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	PurgeDueAt       time.Time `json:"purge_due_at"`
	BackupPurgeDueAt time.Time `json:"backup_purge_due_at"`
}

func accountResponse(u *domain.User) AccountResponse {
	return AccountResponse{
		ID:               u.ID,
		Status:           string(u.Status),
		DeletedAt:        u.DeletedAt,
		PurgeScheduledAt: u.PurgeScheduledAt,
		BackupPurgeDueAt: u.BackupPurgeDueAt,
	}
}

// failAccount maps account service errors to HTTP responses.
func failAccount(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrAccountNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "account not found")
	case errors.Is(err, services.ErrInvalidState):
		fail(c, http.StatusConflict, ErrCodeInvalidState, "account is not pending deletion")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// GetAccount godoc
// @ID          getAccount
// @Summary     Get account status
// @Description Returns the caller's account status and deletion schedule, if any.
// @Tags        Account
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  handlers.AccountResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Account not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /account [get]
func (h *Handlers) GetAccount(c *gin.Context) {
	u, err := h.accounts.Get(c.Request.Context(), userID(c))
	if err != nil {
		failAccount(c, err)
		return
	}
	ok(c, http.StatusOK, accountResponse(u))
}

// ScheduleDeletion godoc
// @ID          scheduleAccountDeletion
// @Summary     Schedule account deletion
// @Description Moves the account to pending_deletion. Repeating the call returns the original schedule.
// @Tags        Account
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false  "Replay-safe retry key"  example(del-7f3a)
//
// @Success     202  {object}  handlers.DeletionScheduledResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Account not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Original request still in progress"
// @Failure     422  {object}  handlers.ErrorResponse  "Idempotency-Key reused"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /account/deletion [post]
func (h *Handlers) ScheduleDeletion(c *gin.Context) {
	sch, err := h.accounts.ScheduleAccountDeletion(c.Request.Context(), userID(c), h.now())
	if err != nil {
		failAccount(c, err)
		return
	}
	ok(c, http.StatusAccepted, DeletionScheduledResponse{
		Status:           string(domain.StatusPendingDeletion),
		ScheduledAt:      sch.ScheduledAt,
		PurgeDueAt:       sch.PurgeDueAt,
		BackupPurgeDueAt: sch.BackupPurgeDueAt,
	})
}

// CancelDeletion godoc
// @ID          cancelAccountDeletion
// @Summary     Cancel account deletion
// @Description Restores a pending account to active before its purge runs.
// @Tags        Account
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false  "Replay-safe retry key"
//
// @Success     200  {object}  handlers.AccountResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Account not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Account is not pending deletion"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /account/deletion [delete]
func (h *Handlers) CancelDeletion(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	if err := h.accounts.CancelAccountDeletion(ctx, uid); err != nil {
		failAccount(c, err)
		return
	}
	u, err := h.accounts.Get(ctx, uid)
	if err != nil {
		failAccount(c, err)
		return
	}
	ok(c, http.StatusOK, accountResponse(u))
}
