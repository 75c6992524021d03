// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, which attaches a conservative set of
// HTTP security headers for a JSON API behind a reverse proxy. Account and
// session payloads carry personal data, so responses are not cacheable unless
// the caller opts out.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
//
// EnableHSTS emits Strict-Transport-Security for HTTPS requests only. Enable
// it only when traffic is HTTPS end-to-end. HSTSMaxAge defaults to 180 days.
//
// AllowCache disables the default Cache-Control: no-store.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	AllowCache   bool
	EnablePolicy bool
}

// exposedHeaders are response headers browser clients need for retries and
// log correlation.
var exposedHeaders = []string{requestIDHeader, HeaderIdempotencyReplayed, "Retry-After", "ETag"}

// SecurityHeaders returns a middleware that adds security headers to every
// response and exposes the correlation and retry headers to CORS clients.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if !opt.AllowCache {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security",
				"max-age="+strconv.Itoa(maxAge)+"; includeSubDomains; preload")
		}

		h.Set("Access-Control-Expose-Headers", mergeHeaderList(h.Get("Access-Control-Expose-Headers"), exposedHeaders))

		c.Next()
	}
}

// mergeHeaderList appends names missing from the comma separated cur.
func mergeHeaderList(cur string, names []string) string {
	have := map[string]bool{}
	var out []string
	for _, p := range strings.Split(cur, ",") {
		if p = strings.TrimSpace(p); p != "" {
			have[strings.ToLower(p)] = true
			out = append(out, p)
		}
	}
	for _, n := range names {
		if !have[strings.ToLower(n)] {
			have[strings.ToLower(n)] = true
			out = append(out, n)
		}
	}
	return strings.Join(out, ", ")
}

// isHTTPS reports whether the request used HTTPS directly or via a proxy that
// set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
