// Package services – IdempotencyService
//
// IdempotencyService gives mutating endpoints at-most-once execution. Resolve
// is called before business logic and decides whether the request is new, a
// replay of a completed request, or a conflicting reuse of the key. The caller
// that receives a new resolution owns the record and must either call Persist
// exactly once with the final response, for successes and handled failures
// alike, or call Release when the request was turned away before business
// logic ran (rate limiting, overload) so a retry executes normally.
//
// Duplicate detection relies solely on the store's unique index: Resolve
// inserts first and only reads when the insert was a no-op.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-fitness-backend/internal/domain"
	"github.com/tbourn/go-fitness-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MaxClientKeyLen bounds the client-supplied key.
const MaxClientKeyLen = 255

// ResolutionKind tells the caller what to do with a request.
type ResolutionKind int

const (
	// ResolutionNew means the caller must run business logic and Persist.
	ResolutionNew ResolutionKind = iota + 1
	// ResolutionReplay means the stored response must be returned verbatim.
	ResolutionReplay
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionNew:
		return "new"
	case ResolutionReplay:
		return "replay"
	}
	return "unknown"
}

// Resolution is the outcome of Resolve. RecordID is set for new resolutions;
// Status, Header and Body for replays.
type Resolution struct {
	Kind     ResolutionKind
	RecordID string
	Status   int
	Header   map[string]string
	Body     []byte
}

// IdempotencyService implements Resolve and Persist over the idempotency store.
type IdempotencyService struct {
	Store *repo.Store
	// Now is the clock used for created_at; defaults to time.Now.
	Now func() time.Time
}

// NewIdempotencyService constructs an IdempotencyService.
func NewIdempotencyService(store *repo.Store) *IdempotencyService {
	return &IdempotencyService{Store: store, Now: time.Now}
}

// Resolve classifies a mutation identified by scope with the given payload.
//
// Errors:
//   - ErrInvalidIdempotencyKey for an empty or oversized client key.
//   - ErrInvalidInput when the payload is not valid JSON.
//   - ErrIdempotencyKeyReuse when the stored request hash differs.
//   - ErrIdempotencyInFlight when the original has not recorded a response.
func (s *IdempotencyService) Resolve(ctx context.Context, scope domain.IdempotencyScope, payload any) (Resolution, error) {
	tr := otel.Tracer("services/IdempotencyService")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(
			attribute.String("user.id", scope.UserID),
			attribute.String("http.method", scope.Method),
			attribute.String("http.route", scope.Route),
		),
	)
	defer span.End()

	res, err := s.resolve(ctx, scope, payload)
	outcome := res.Kind.String()
	switch {
	case errors.Is(err, ErrIdempotencyInFlight):
		outcome = "in_flight"
	case errors.Is(err, ErrIdempotencyKeyReuse):
		outcome = "key_reuse"
	case err != nil:
		outcome = "error"
		span.RecordError(err)
	}
	idemResolutions.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("idempotency.outcome", outcome))
	return res, err
}

func (s *IdempotencyService) resolve(ctx context.Context, scope domain.IdempotencyScope, payload any) (Resolution, error) {
	key := strings.TrimSpace(scope.ClientKey)
	if key == "" || len(key) > MaxClientKeyLen {
		return Resolution{}, ErrInvalidIdempotencyKey
	}
	scope.ClientKey = key

	hash, err := RequestHash(payload)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// The existing row can vanish between the conflicting insert and the read
	// (retention GC), in which case the insert is simply retried.
	for attempt := 0; attempt < 2; attempt++ {
		rec := &domain.IdempotencyKey{
			ID:          uuid.NewString(),
			UserID:      scope.UserID,
			Method:      scope.Method,
			Route:       scope.Route,
			ClientKey:   scope.ClientKey,
			RequestHash: hash,
			CreatedAt:   s.now(),
		}
		inserted, err := s.Store.InsertIdempotencyKey(ctx, rec)
		if err != nil {
			return Resolution{}, err
		}
		if inserted {
			return Resolution{Kind: ResolutionNew, RecordID: rec.ID}, nil
		}

		existing, err := s.Store.GetIdempotencyKey(ctx, scope)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return Resolution{}, err
		}
		return classify(existing, hash)
	}
	return Resolution{}, ErrIdempotencyInFlight
}

func classify(existing *domain.IdempotencyKey, hash string) (Resolution, error) {
	if existing.RequestHash != hash {
		return Resolution{}, ErrIdempotencyKeyReuse
	}
	if !existing.Completed() {
		return Resolution{}, ErrIdempotencyInFlight
	}
	return Resolution{
		Kind:   ResolutionReplay,
		Status: *existing.ResponseStatus,
		Header: existing.ResponseHeaders,
		Body:   existing.ResponseBody,
	}, nil
}

// Persist attaches the final response to the record returned by a new
// resolution. It succeeds at most once per record. header carries the response
// headers to reproduce on replay and may be nil.
func (s *IdempotencyService) Persist(ctx context.Context, recordID string, status int, header map[string]string, body []byte) error {
	tr := otel.Tracer("services/IdempotencyService")
	ctx, span := tr.Start(ctx, "Persist",
		trace.WithAttributes(
			attribute.String("idempotency.record_id", recordID),
			attribute.Int("http.status_code", status),
		),
	)
	defer span.End()

	err := s.Store.SaveIdempotencyResponse(ctx, recordID, status, header, body)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrAlreadyPersisted):
		return ErrIdempotencyAlreadyPersisted
	case errors.Is(err, repo.ErrNotFound):
		return ErrIdempotencyRecordNotFound
	default:
		span.RecordError(err)
		return err
	}
}

// Release drops an in-flight record so its key can be retried. It is a no-op
// for records that already carry a response.
func (s *IdempotencyService) Release(ctx context.Context, recordID string) error {
	tr := otel.Tracer("services/IdempotencyService")
	ctx, span := tr.Start(ctx, "Release",
		trace.WithAttributes(attribute.String("idempotency.record_id", recordID)),
	)
	defer span.End()

	released, err := s.Store.ReleaseIdempotencyKey(ctx, recordID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if released {
		idemResolutions.WithLabelValues("released").Inc()
	}
	return nil
}

func (s *IdempotencyService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
