// Workout session HTTP handlers.
//
//   - POST /sessions                 (create)
//   - GET  /sessions                 (list, paginated, ETag support)
//   - POST /sessions/{id}/exercises  (log an exercise with sets)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-fitness-backend/internal/domain"
	"github.com/tbourn/go-fitness-backend/internal/repo"
	"github.com/tbourn/go-fitness-backend/internal/services"
	"github.com/tbourn/go-fitness-backend/internal/utils"
)

// CreateSessionRequest is the JSON payload for creating a session.
type CreateSessionRequest struct {
	// Title optionally names the session; "Workout" is used when empty.
	Title string `json:"title" example:"Leg day"`
	// StartedAt defaults to now.
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// SetRequest is one performed set.
type SetRequest struct {
	Reps     int     `json:"reps"      example:"5"`
	WeightKg float64 `json:"weight_kg" example:"100"`
}

// AddExerciseRequest logs an exercise into a session.
type AddExerciseRequest struct {
	Name        string       `json:"name"         binding:"required" example:"Back squat"`
	MuscleGroup string       `json:"muscle_group" example:"legs"`
	Sets        []SetRequest `json:"sets"`
}

// AddExerciseResponse is the created link with its sets.
type AddExerciseResponse struct {
	Exercise domain.SessionExercise `json:"exercise"`
	Sets     []domain.ExerciseSet   `json:"sets"`
}

// ListSessionsResponse wraps a page of sessions.
type ListSessionsResponse struct {
	Sessions   []domain.WorkoutSession `json:"sessions"`
	Pagination utils.Pagination        `json:"pagination"`
}

// CreateSession godoc
// @ID          createSession
// @Summary     Create a workout session
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string                         false  "Replay-safe retry key"
// @Param       body             body    handlers.CreateSessionRequest  true   "Create session payload"
//
// @Success     201  {object}  domain.WorkoutSession
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Original request still in progress"
// @Failure     422  {object}  handlers.ErrorResponse  "Idempotency-Key reused"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	var started time.Time
	if req.StartedAt != nil {
		started = *req.StartedAt
	}

	ws, err := h.sessions.Create(c.Request.Context(), userID(c), req.Title, started)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not create session")
		return
	}
	ok(c, http.StatusCreated, ws)
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List workout sessions (paginated)
// @Description Returns a page of the caller's sessions, newest first. Supports a weak ETag via If-None-Match.
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSessionsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := utils.ClampPage(c.Query("page"), c.Query("page_size"))

	// ETag pre-check (best effort).
	if count, maxTS, err := h.sessions.Stats(ctx, uid); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"sessions:%s:%d:%d:%d:%d"`, uid, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.sessions.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list sessions")
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions:   items,
		Pagination: utils.NewPagination(page, pageSize, total),
	})
}

// AddExercise godoc
// @ID          addSessionExercise
// @Summary     Log an exercise into a session
// @Description Records the exercise and its sets atomically.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string                       false  "Replay-safe retry key"
// @Param       id               path    string                       true   "Session ID (UUID)"  format(uuid)
// @Param       body             body    handlers.AddExerciseRequest  true   "Exercise payload"
//
// @Success     201  {object}  handlers.AddExerciseResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/exercises [post]
func (h *Handlers) AddExercise(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}
	var req AddExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	sets := make([]repo.SetInput, 0, len(req.Sets))
	for _, s := range req.Sets {
		sets = append(sets, repo.SetInput{Reps: s.Reps, WeightKg: s.WeightKg})
	}

	link, out, err := h.sessions.AddExercise(c.Request.Context(), userID(c), sessionID, req.Name, req.MuscleGroup, sets)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidInput):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "could not add exercise")
		return
	}
	if out == nil {
		out = []domain.ExerciseSet{}
	}
	ok(c, http.StatusCreated, AddExerciseResponse{Exercise: *link, Sets: out})
}
