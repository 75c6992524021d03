package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-fitness-backend/internal/domain"
)

// ErrStateChanged is returned by DeleteUserData when the account row was not
// in pending_deletion at the time of the final delete.
var ErrStateChanged = errors.New("account no longer pending deletion")

// PurgeCounts maps table name to rows removed.
type PurgeCounts map[string]int64

// Total sums all counts.
func (c PurgeCounts) Total() int64 {
	var n int64
	for _, v := range c {
		n += v
	}
	return n
}

type purgeStep struct {
	model any
	where string
	args  []any
}

// DeleteUserData removes every row owned by userID, detaches the user from
// audit history and deletes the account row last. Foreign keys are RESTRICT,
// so the order below is the dependency order. It must run inside Tx; callers
// own the transaction boundary.
func (s *Store) DeleteUserData(ctx context.Context, userID string) (PurgeCounts, error) {
	db := s.conn(ctx)

	sessions := func() *gorm.DB {
		return db.Model(&domain.WorkoutSession{}).Select("id").Where("user_id = ?", userID)
	}
	links := db.Model(&domain.SessionExercise{}).Select("id").Where("session_id IN (?)", sessions())

	steps := []purgeStep{
		{&domain.ExerciseSet{}, "session_exercise_id IN (?)", []any{links}},
		{&domain.SessionExercise{}, "session_id IN (?)", []any{sessions()}},
		{&domain.WorkoutSession{}, "user_id = ?", []any{userID}},
		{&domain.Exercise{}, "user_id = ?", []any{userID}},
		{&domain.TrainingPlan{}, "user_id = ?", []any{userID}},
		{&domain.BodyMetric{}, "user_id = ?", []any{userID}},
		{&domain.UserContact{}, "user_id = ?", []any{userID}},
		{&domain.UserProfile{}, "user_id = ?", []any{userID}},
		{&domain.UserStateHistory{}, "user_id = ?", []any{userID}},
		{&domain.UserPoint{}, "user_id = ?", []any{userID}},
		{&domain.UserBadge{}, "user_id = ?", []any{userID}},
		{&domain.UserFollow{}, "follower_id = ? OR followee_id = ?", []any{userID, userID}},
		{&domain.MediaObject{}, "user_id = ?", []any{userID}},
		{&domain.AuthToken{}, "user_id = ?", []any{userID}},
		{&domain.RefreshToken{}, "user_id = ?", []any{userID}},
		{&domain.AuthSession{}, "user_id = ?", []any{userID}},
		{&domain.IdempotencyKey{}, "user_id = ?", []any{userID}},
	}

	counts := PurgeCounts{}
	for _, st := range steps {
		table := tableOf(st.model)
		res := db.Where(st.where, st.args...).Delete(st.model)
		if res.Error != nil {
			return counts, fmt.Errorf("purge %s: %w", table, res.Error)
		}
		counts[table] = res.RowsAffected
	}

	res := db.Model(&domain.AuditLog{}).
		Where("actor_user_id = ?", userID).
		Update("actor_user_id", nil)
	if res.Error != nil {
		return counts, fmt.Errorf("detach audit_logs: %w", res.Error)
	}

	res = db.Where("id = ? AND status = ?", userID, domain.StatusPendingDeletion).Delete(&domain.User{})
	if res.Error != nil {
		return counts, fmt.Errorf("purge users: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return counts, ErrStateChanged
	}
	counts["users"] = res.RowsAffected
	return counts, nil
}

// OwnedRowCounts reports, per owned table, how many rows still reference
// userID. Used to verify a purge.
func (s *Store) OwnedRowCounts(ctx context.Context, userID string) (PurgeCounts, error) {
	db := s.conn(ctx)
	out := PurgeCounts{}
	count := func(model any, where string, args ...any) error {
		var n int64
		if err := db.Model(model).Where(where, args...).Count(&n).Error; err != nil {
			return err
		}
		out[tableOf(model)] = n
		return nil
	}

	sessions := db.Model(&domain.WorkoutSession{}).Select("id").Where("user_id = ?", userID)
	if err := count(&domain.SessionExercise{}, "session_id IN (?)", sessions); err != nil {
		return nil, err
	}
	for _, m := range []any{
		&domain.WorkoutSession{}, &domain.Exercise{}, &domain.TrainingPlan{},
		&domain.BodyMetric{}, &domain.UserContact{}, &domain.UserProfile{},
		&domain.UserStateHistory{}, &domain.UserPoint{}, &domain.UserBadge{},
		&domain.MediaObject{}, &domain.AuthToken{}, &domain.RefreshToken{},
		&domain.AuthSession{}, &domain.IdempotencyKey{},
	} {
		if err := count(m, "user_id = ?", userID); err != nil {
			return nil, err
		}
	}
	if err := count(&domain.UserFollow{}, "follower_id = ? OR followee_id = ?", userID, userID); err != nil {
		return nil, err
	}
	if err := count(&domain.User{}, "id = ?", userID); err != nil {
		return nil, err
	}
	return out, nil
}
