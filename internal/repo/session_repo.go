// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for workout sessions
// and the exercises logged into them.
//
// Functions follow the "thin repository" approach: no business logic, only
// persistence and query composition. Ownership is always enforced by user_id.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-fitness-backend/internal/domain"
)

// CreateSession inserts a new workout session owned by userID.
func (s *Store) CreateSession(ctx context.Context, userID, title string, startedAt time.Time) (*domain.WorkoutSession, error) {
	now := time.Now().UTC()
	if startedAt.IsZero() {
		startedAt = now
	}
	ws := &domain.WorkoutSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		StartedAt: startedAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.conn(ctx).Create(ws).Error; err != nil {
		return nil, err
	}
	return ws, nil
}

// CountSessions returns the number of sessions owned by userID.
func (s *Store) CountSessions(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.conn(ctx).
		Model(&domain.WorkoutSession{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListSessionsPage returns a page of sessions, most recent start first.
func (s *Store) ListSessionsPage(ctx context.Context, userID string, offset, limit int) ([]domain.WorkoutSession, error) {
	var out []domain.WorkoutSession
	err := s.conn(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetSession fetches a session by id and owner, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id, userID string) (*domain.WorkoutSession, error) {
	var ws domain.WorkoutSession
	err := s.conn(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&ws).Error
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// SetInput is one performed set.
type SetInput struct {
	Reps     int
	WeightKg float64
}

// AddSessionExercise finds or creates the named exercise in the user's
// catalogue, links it at the next position of the session and records the
// sets. Callers should run it inside Tx so a failure leaves no partial link.
func (s *Store) AddSessionExercise(ctx context.Context, userID, sessionID, name, muscleGroup string, sets []SetInput) (*domain.SessionExercise, []domain.ExerciseSet, error) {
	db := s.conn(ctx)
	now := time.Now().UTC()

	var ex domain.Exercise
	err := db.Where("user_id = ? AND name = ?", userID, name).First(&ex).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		ex = domain.Exercise{
			ID:          uuid.NewString(),
			UserID:      userID,
			Name:        name,
			MuscleGroup: muscleGroup,
			CreatedAt:   now,
		}
		if err := db.Create(&ex).Error; err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, err
	}

	var maxPos struct{ Position int }
	if err := db.Model(&domain.SessionExercise{}).
		Select("COALESCE(MAX(position), 0) AS position").
		Where("session_id = ?", sessionID).
		Scan(&maxPos).Error; err != nil {
		return nil, nil, err
	}

	link := &domain.SessionExercise{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		ExerciseID: ex.ID,
		Position:   maxPos.Position + 1,
		CreatedAt:  now,
	}
	if err := db.Create(link).Error; err != nil {
		return nil, nil, err
	}

	out := make([]domain.ExerciseSet, 0, len(sets))
	for _, in := range sets {
		out = append(out, domain.ExerciseSet{
			ID:                uuid.NewString(),
			SessionExerciseID: link.ID,
			Reps:              in.Reps,
			WeightKg:          in.WeightKg,
			CreatedAt:         now,
		})
	}
	if len(out) > 0 {
		if err := db.Create(&out).Error; err != nil {
			return nil, nil, err
		}
	}

	if err := db.Model(&domain.WorkoutSession{}).
		Where("id = ?", sessionID).
		Update("updated_at", now).Error; err != nil {
		return nil, nil, err
	}
	return link, out, nil
}
