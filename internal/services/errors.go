// Package services defines the business logic for idempotent mutations and the
// account deletion lifecycle. This file centralizes service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler/middleware layer.
package services

import (
	"errors"
	"fmt"
)

// Account lifecycle errors.
var (
	// ErrAccountNotFound indicates that the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidState is returned when an operation requires a different
	// account status, e.g. purging an account that was never scheduled.
	ErrInvalidState = errors.New("account is not in the required state")
)

// Idempotency errors.
var (
	// ErrIdempotencyKeyReuse is returned when a client reuses an idempotency
	// key for a request with a different payload. Not retryable.
	ErrIdempotencyKeyReuse = errors.New("idempotency key reused with a different request")

	// ErrIdempotencyInFlight is returned when the original request for a key
	// has not recorded a response yet. Retryable after a backoff.
	ErrIdempotencyInFlight = errors.New("original request for this idempotency key is still in progress")

	// ErrIdempotencyAlreadyPersisted is returned when a response is attached to
	// a record twice.
	ErrIdempotencyAlreadyPersisted = errors.New("idempotency response already persisted")

	// ErrIdempotencyRecordNotFound is returned by Persist for an unknown id.
	ErrIdempotencyRecordNotFound = errors.New("idempotency record not found")

	// ErrInvalidIdempotencyKey is returned for empty or oversized client keys.
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
)

// Session errors.
var (
	// ErrSessionNotFound indicates that the workout session does not exist or
	// belongs to another user.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// ErrSweepLocked is returned when another retention sweep holds the run lock.
var ErrSweepLocked = errors.New("retention sweep already running")

// PurgeError reports a failed purge transaction. The transaction was rolled
// back and the account is still pending deletion.
type PurgeError struct {
	UserID string
	Err    error
}

func (e *PurgeError) Error() string {
	return fmt.Sprintf("purge account %s: %v", e.UserID, e.Err)
}

func (e *PurgeError) Unwrap() error { return e.Err }

// SystemicError marks a failure that makes continuing a sweep pointless, such
// as an unreachable database or a cancelled context.
type SystemicError struct {
	Err error
}

func (e *SystemicError) Error() string { return "systemic failure: " + e.Err.Error() }

func (e *SystemicError) Unwrap() error { return e.Err }

// IsRetryable reports whether a caller may retry the failed operation later.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrIdempotencyInFlight) || errors.Is(err, ErrSweepLocked) {
		return true
	}
	var pe *PurgeError
	if errors.As(err, &pe) {
		return true
	}
	var se *SystemicError
	return errors.As(err, &se)
}
