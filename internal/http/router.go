// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, identity, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-fitness-backend/internal/config"
	"github.com/tbourn/go-fitness-backend/internal/http/docs"
	"github.com/tbourn/go-fitness-backend/internal/http/handlers"
	"github.com/tbourn/go-fitness-backend/internal/http/middleware"
	"github.com/tbourn/go-fitness-backend/internal/repo"
	"github.com/tbourn/go-fitness-backend/internal/services"
)

// maxBodyBytes caps request bodies globally.
const maxBodyBytes = 1 << 20

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. The account service is built by the caller because its storage and
// audit adapters depend on deployment configuration; the remaining services
// are constructed here from store.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip, CORS and security headers
//
// and on the API group:
//  8. Identity (401 without a user)
//  9. Idempotency (replays return before rate limiting; a 429 releases the key)
//  10. Rate limiter (per user)
func RegisterRoutes(r *gin.Engine, store *repo.Store, accounts *services.AccountService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(corsMiddleware(cfg.CORS)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(store))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	idemSvc := services.NewIdempotencyService(store)
	h := handlers.New(accounts, services.NewSessionService(store))
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, nil)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		middleware.Identity(middleware.IdentityOptions{
			Secret:      []byte(cfg.Auth.JWTSecret),
			AllowHeader: cfg.Auth.AllowHeaderIdentity,
		}),
		middleware.Idempotency(idemSvc, middleware.IdempotencyOptions{
			RetryAfter: cfg.IdempotencyRetryAfter,
		}),
		rl.Handler(),
	)
	{
		// Account lifecycle
		api.GET("/account", h.GetAccount)
		api.POST("/account/deletion", h.ScheduleDeletion)
		api.DELETE("/account/deletion", h.CancelDeletion)

		// Workout sessions
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions", h.ListSessions)
		api.POST("/sessions/:id/exercises", h.AddExercise)
	}
}

// corsMiddleware allows every origin when none are configured; otherwise it
// echoes allow-listed origins.
func corsMiddleware(cfg config.CORSConfig) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization",
			middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", middleware.HeaderIdempotencyReplayed, "Retry-After", "ETag"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// ACAO: * even without an Origin header (simple health checks).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = cfg.AllowedOrigins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// health reports 503 when the database is unreachable.
func health(store *repo.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			_ = c.Error(err)
			handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// limitBody caps the request body size to maxBytes using http.MaxBytesReader.
// Requests exceeding the cap cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
