// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file establishes the caller identity. Requests carry an HS256 bearer
// token whose subject is the user id; in development and tests the X-User-ID
// header may be trusted instead. The resolved id is stored in the Gin context
// under "userID", which the logger, rate limiter and idempotency middleware
// read.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// HeaderUserID is the development identity header.
const HeaderUserID = "X-User-ID"

const ctxKeyUserID = "userID"

// ErrInvalidToken is returned by VerifyToken for any unusable bearer token.
var ErrInvalidToken = errors.New("invalid bearer token")

// IdentityOptions configures Identity.
type IdentityOptions struct {
	// Secret verifies HS256 bearer tokens. Empty disables bearer auth.
	Secret []byte
	// AllowHeader trusts X-User-ID when no bearer token is present.
	AllowHeader bool
	// Clock is used for exp/nbf checks; defaults to time.Now.
	Clock func() time.Time
}

// UserID returns the authenticated user id set by Identity.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// Identity authenticates the request or aborts with 401.
func Identity(opts IdentityOptions) gin.HandlerFunc {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return func(c *gin.Context) {
		if auth := c.GetHeader("Authorization"); auth != "" && len(opts.Secret) > 0 {
			raw, found := strings.CutPrefix(auth, "Bearer ")
			if !found {
				unauthorized(c, "authorization must be a bearer token")
				return
			}
			sub, err := VerifyToken(raw, opts.Secret, clock)
			if err != nil {
				unauthorized(c, "invalid or expired token")
				return
			}
			c.Set(ctxKeyUserID, sub)
			c.Next()
			return
		}
		if opts.AllowHeader {
			if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" && len(uid) <= 64 {
				c.Set(ctxKeyUserID, uid)
				c.Next()
				return
			}
		}
		unauthorized(c, "authentication required")
	}
}

// VerifyToken validates an HS256 token and returns its subject.
func VerifyToken(raw string, secret []byte, clock func() time.Time) (string, error) {
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(clock),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// SignToken issues an HS256 token for sub valid for ttl. Used by tooling and
// tests.
func SignToken(sub string, secret []byte, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
