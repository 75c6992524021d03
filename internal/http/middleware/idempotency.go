// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotent execution for unsafe methods. A request that
// carries an Idempotency-Key header is resolved against the idempotency store
// before the handler runs:
//   - new:    the handler runs, its response is captured and persisted
//   - replay: the stored response is written back with Idempotency-Replayed: true
//   - reuse of the key with a different body: 422
//   - original still in flight: 409 with Retry-After
//
// Responses that turned the request away before business logic ran (429 from
// the rate limiter, 503) are not stored: the record is released and a retry
// with the same key executes normally.
//
// The scope is (user, method, request path, key), so the same key may be used
// on different resources.
package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-fitness-backend/internal/domain"
	"github.com/tbourn/go-fitness-backend/internal/services"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for unsafe operations.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed marks a response served from the store.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
)

// GetIdempotencyKey returns the validated key stashed by Idempotency.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the response was served from the store.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyResolver is the service contract used by the middleware.
type IdempotencyResolver interface {
	Resolve(ctx context.Context, scope domain.IdempotencyScope, payload any) (services.Resolution, error)
	Persist(ctx context.Context, recordID string, status int, header map[string]string, body []byte) error
	Release(ctx context.Context, recordID string) error
}

// replayHeaders are the response headers stored with a record and written
// back on replay.
var replayHeaders = []string{"Content-Type", "ETag", "Location", "Last-Modified"}

// releasedStatus reports statuses that mean the request never reached
// business logic.
func releasedStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// IdempotencyOptions configures Idempotency.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
	// RetryAfter is advertised on in-flight conflicts. Defaults to 2s.
	RetryAfter time.Duration
}

var unsafeMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Idempotency wraps unsafe requests carrying an Idempotency-Key header. It must
// run after Identity. Requests without the header pass through untouched.
func Idempotency(svc IdempotencyResolver, opts IdempotencyOptions) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	retryAfter := opts.RetryAfter
	if retryAfter <= 0 {
		retryAfter = 2 * time.Second
	}
	retrySecs := strconv.Itoa(int((retryAfter + time.Second - 1) / time.Second))

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !unsafeMethods[c.Request.Method] {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		uid, ok := UserID(c)
		if !ok {
			c.Next()
			return
		}
		c.Set(ctxKeyIdemKey, key)

		var body []byte
		if c.Request.Body != nil {
			b, err := io.ReadAll(c.Request.Body)
			if err != nil {
				abortJSON(c, http.StatusRequestEntityTooLarge, "bad_request", "request body too large")
				return
			}
			body = b
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		scope := domain.IdempotencyScope{
			UserID:    uid,
			Method:    c.Request.Method,
			Route:     c.Request.URL.Path,
			ClientKey: key,
		}
		res, err := svc.Resolve(ctx, scope, body)
		switch {
		case err == nil:
		case errors.Is(err, services.ErrIdempotencyKeyReuse):
			abortJSON(c, http.StatusUnprocessableEntity, "idempotency_key_reused", "Idempotency-Key was already used with a different request")
			return
		case errors.Is(err, services.ErrIdempotencyInFlight):
			c.Header("Retry-After", retrySecs)
			abortJSON(c, http.StatusConflict, "idempotency_in_flight", "a request with this Idempotency-Key is still in progress")
			return
		case errors.Is(err, services.ErrInvalidIdempotencyKey):
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		case errors.Is(err, services.ErrInvalidInput):
			abortJSON(c, http.StatusBadRequest, "bad_request", "request body must be valid JSON")
			return
		default:
			LoggerFrom(c).Error().Err(err).Msg("idempotency_resolve_failed")
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}

		if res.Kind == services.ResolutionReplay {
			c.Set(ctxKeyIdemReplay, true)
			c.Header(HeaderIdempotencyReplayed, "true")
			contentType := "application/json; charset=utf-8"
			for k, v := range res.Header {
				if k == "Content-Type" {
					contentType = v
					continue
				}
				c.Header(k, v)
			}
			c.Data(res.Status, contentType, res.Body)
			c.Abort()
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw
		c.Next()

		// The response is already on the wire; persist even if the client left.
		ctx = context.WithoutCancel(ctx)
		status := cw.Status()
		if releasedStatus(status) {
			if err := svc.Release(ctx, res.RecordID); err != nil {
				LoggerFrom(c).Error().Err(err).Str("record_id", res.RecordID).Msg("idempotency_release_failed")
			}
			return
		}
		if err := svc.Persist(ctx, res.RecordID, status, storedHeaders(cw.Header()), cw.buf.Bytes()); err != nil {
			LoggerFrom(c).Error().Err(err).Str("record_id", res.RecordID).Msg("idempotency_persist_failed")
		}
	}
}

func storedHeaders(h http.Header) map[string]string {
	var out map[string]string
	for _, k := range replayHeaders {
		if v := h.Get(k); v != "" {
			if out == nil {
				out = make(map[string]string, len(replayHeaders))
			}
			out[k] = v
		}
	}
	return out
}

// captureWriter tees the response body so it can be stored for replays.
type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
