package repo

import (
	"context"
	"time"

	"github.com/tbourn/go-fitness-backend/internal/domain"
)

// TokenPurgeCounts reports rows removed by DeleteStaleTokens.
type TokenPurgeCounts struct {
	AuthTokens    int64
	RefreshTokens int64
	AuthSessions  int64
}

// Total sums all counts.
func (c TokenPurgeCounts) Total() int64 {
	return c.AuthTokens + c.RefreshTokens + c.AuthSessions
}

// DeleteStaleTokens removes expired auth tokens, refresh tokens that expired or
// were revoked, and expired auth sessions.
func (s *Store) DeleteStaleTokens(ctx context.Context, now time.Time) (TokenPurgeCounts, error) {
	var out TokenPurgeCounts
	now = now.UTC()
	db := s.conn(ctx)

	res := db.Where("expires_at <= ?", now).Delete(&domain.AuthToken{})
	if res.Error != nil {
		return out, res.Error
	}
	out.AuthTokens = res.RowsAffected

	res = db.Where("expires_at <= ? OR revoked_at IS NOT NULL", now).Delete(&domain.RefreshToken{})
	if res.Error != nil {
		return out, res.Error
	}
	out.RefreshTokens = res.RowsAffected

	res = db.Where("expires_at <= ?", now).Delete(&domain.AuthSession{})
	if res.Error != nil {
		return out, res.Error
	}
	out.AuthSessions = res.RowsAffected
	return out, nil
}
