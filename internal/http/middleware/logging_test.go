package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// captureLogs points the global logger at a buffer for the test's duration.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

// logLines decodes newline-delimited JSON log output.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(ln), &m); err != nil {
			t.Fatalf("bad log line %q: %v", ln, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		v, _ := c.Get(requestIDKey)
		seen = asString(v)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if seen == "" || w.Header().Get(requestIDHeader) != seen {
		t.Fatalf("generated id not echoed: ctx=%q header=%q", seen, w.Header().Get(requestIDHeader))
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(requestIDHeader, "client-rid")
	r.ServeHTTP(w, req)
	if seen != "client-rid" || w.Header().Get(requestIDHeader) != "client-rid" {
		t.Fatalf("incoming id not reused: %q", seen)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("a", 200))
	r.ServeHTTP(w, req)
	if len(seen) > 128 {
		t.Fatalf("oversized id should be replaced, got len %d", len(seen))
	}
}

func TestRecovery_PanicBeforeWrite(t *testing.T) {
	buf := captureLogs(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(requestIDHeader, "rid-1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-1" {
		t.Fatalf("body = %v", body)
	}

	var sawPanic bool
	for _, ln := range logLines(t, buf) {
		if ln["message"] == "panic recovered" {
			sawPanic = true
			if ln["request_id"] != "rid-1" || ln["panic"] != "kaboom" {
				t.Fatalf("panic log = %v", ln)
			}
		}
	}
	if !sawPanic {
		t.Fatalf("panic was not logged: %s", buf.String())
	}
}

func TestRecovery_PanicAfterWrite(t *testing.T) {
	captureLogs(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery())
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if w.Body.String() != "partial" {
		t.Fatalf("body overwritten: %q", w.Body.String())
	}
}

func TestLoggerFrom_FallsBackToGlobal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if LoggerFrom(c) == nil {
		t.Fatal("nil logger")
	}
	c.Set(loggerKey, "not a logger")
	if LoggerFrom(c) == nil {
		t.Fatal("nil logger for wrong type")
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"abc", 0, "abc"},
		{"abc", 5, "abc"},
		{"abcdef", 3, "abc…"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("truncate(%q,%d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
