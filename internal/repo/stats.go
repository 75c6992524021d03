// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"github.com/tbourn/go-fitness-backend/internal/domain"
)

// SessionsStats returns the number of sessions owned by userID and the greatest
// UpdatedAt among them. When the user has no sessions the count is 0 and
// maxUpdatedAt is nil.
func (s *Store) SessionsStats(ctx context.Context, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := s.conn(ctx).Model(&domain.WorkoutSession{}).Where("user_id = ?", userID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
