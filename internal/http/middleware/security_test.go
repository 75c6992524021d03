package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, pre gin.HandlerFunc, req *http.Request) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Defaults(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{}, nil, httptest.NewRequest(http.MethodGet, "/ok", nil))

	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" {
		t.Fatalf("expected no-store by default: %#v", h)
	}
	if h.Get("Permissions-Policy") != "" || h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("unexpected optional headers: %#v", h)
	}
	want := "X-Request-ID, Idempotency-Replayed, Retry-After, ETag"
	if got := h.Get("Access-Control-Expose-Headers"); got != want {
		t.Fatalf("expose headers = %q, want %q", got, want)
	}
}

func TestSecurityHeaders_AllowCacheAndPolicy(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{AllowCache: true, EnablePolicy: true}, nil,
		httptest.NewRequest(http.MethodGet, "/ok", nil))
	if h.Get("Cache-Control") != "" {
		t.Fatalf("cache headers should be absent: %#v", h)
	}
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %#v", h)
	}
}

func TestSecurityHeaders_MergesExistingExposeHeader(t *testing.T) {
	pre := func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "Foo, retry-after")
		c.Next()
	}
	h := serveSecurity(t, SecurityOptions{}, pre, httptest.NewRequest(http.MethodGet, "/ok", nil))
	want := "Foo, retry-after, X-Request-ID, Idempotency-Replayed, ETag"
	if got := h.Get("Access-Control-Expose-Headers"); got != want {
		t.Fatalf("expose headers = %q, want %q", got, want)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	cases := []struct {
		name string
		req  func() *http.Request
		want string
	}{
		{"plain http", func() *http.Request { return httptest.NewRequest(http.MethodGet, "/ok", nil) }, ""},
		{"tls", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/ok", nil)
			r.TLS = &tls.ConnectionState{}
			return r
		}, "max-age=3600; includeSubDomains; preload"},
		{"forwarded proto", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/ok", nil)
			r.Header.Set("X-Forwarded-Proto", "HTTPS")
			return r
		}, "max-age=3600; includeSubDomains; preload"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := serveSecurity(t, SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour}, nil, tc.req())
			if got := h.Get("Strict-Transport-Security"); got != tc.want {
				t.Fatalf("HSTS = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSecurityHeaders_DefaultHSTSMaxAge(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ok", nil)
	r.TLS = &tls.ConnectionState{}
	h := serveSecurity(t, SecurityOptions{EnableHSTS: true}, nil, r)
	if got := h.Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}
}
