// Package services – SessionService
//
// SessionService manages workout sessions, the main user-owned aggregate the
// idempotent mutation endpoints write to. Titles are normalized and clipped the
// same way for every write path; adding an exercise to a session is a single
// transaction so a retried request never leaves a half-written link.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-fitness-backend/internal/domain"
	"github.com/tbourn/go-fitness-backend/internal/repo"
)

// Limits applied by SessionService.
const (
	MaxSetsPerExercise = 50
	MaxReps            = 1000
	MaxWeightKg        = 1000.0
)

// SessionService provides workout session operations scoped to one user.
type SessionService struct {
	Store *repo.Store

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// TitleLocale selects the casing rules for exercise names.
	TitleLocale language.Tag
}

// NewSessionService constructs a SessionService with default title handling.
func NewSessionService(store *repo.Store) *SessionService {
	return &SessionService{Store: store, TitleMaxLen: 120, TitleLocale: language.English}
}

// TitleLocaleOrDefault returns the configured locale for casing or English if unset.
func (s *SessionService) TitleLocaleOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// exerciseName title-cases a catalogue name so "bench press" and "Bench press"
// resolve to the same exercise. Existing capitals (RDL, EZ-bar) are kept.
func (s *SessionService) exerciseName(name string) string {
	name = normalizeTitle(name)
	if name == "" {
		return ""
	}
	return cases.Title(s.TitleLocaleOrDefault(), cases.NoLower).String(name)
}

// Create starts a session for userID. A blank title becomes "Workout"; a zero
// startedAt means now.
func (s *SessionService) Create(ctx context.Context, userID, title string, startedAt time.Time) (*domain.WorkoutSession, error) {
	title = normalizeTitle(title)
	if title == "" {
		title = "Workout"
	}
	return s.Store.CreateSession(ctx, userID, s.clip(title), startedAt)
}

// ListPage returns a page of the user's sessions and the total count.
func (s *SessionService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.WorkoutSession, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Store.CountSessions(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.WorkoutSession{}, 0, nil
	}
	items, err := s.Store.ListSessionsPage(ctx, userID, offset, pageSize)
	return items, total, err
}

// Stats returns the count and latest update of the user's sessions, for ETags.
func (s *SessionService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return s.Store.SessionsStats(ctx, userID)
}

// AddExercise logs an exercise with its sets into a session owned by userID.
//
// Errors:
//   - ErrInvalidInput for a blank name or out-of-range sets.
//   - ErrSessionNotFound when the session is missing or owned by someone else.
func (s *SessionService) AddExercise(ctx context.Context, userID, sessionID, name, muscleGroup string, sets []repo.SetInput) (*domain.SessionExercise, []domain.ExerciseSet, error) {
	name = s.exerciseName(name)
	if name == "" || utf8.RuneCountInString(name) > 128 {
		return nil, nil, fmt.Errorf("%w: exercise name must be 1-128 characters", ErrInvalidInput)
	}
	if len(sets) > MaxSetsPerExercise {
		return nil, nil, fmt.Errorf("%w: at most %d sets", ErrInvalidInput, MaxSetsPerExercise)
	}
	for i, st := range sets {
		if st.Reps < 0 || st.Reps > MaxReps || st.WeightKg < 0 || st.WeightKg > MaxWeightKg {
			return nil, nil, fmt.Errorf("%w: set %d out of range", ErrInvalidInput, i+1)
		}
	}

	var (
		link *domain.SessionExercise
		out  []domain.ExerciseSet
	)
	err := s.Store.Tx(ctx, func(tx *repo.Store) error {
		if _, err := tx.GetSession(ctx, sessionID, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		var err error
		link, out, err = tx.AddSessionExercise(ctx, userID, sessionID, name, s.exerciseName(muscleGroup), sets)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return link, out, nil
}

func (s *SessionService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses runs of it to one space.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

var whitespaceRE = regexp.MustCompile(`\s+`)
