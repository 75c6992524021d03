// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, rate limiting, account
// lifecycle grace periods, external adapters, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-fitness-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StorageConfig selects the object store used to delete user media.
type StorageConfig struct {
	Driver   string // none|local|s3
	LocalDir string // STORAGE_LOCAL_DIR, used by the local driver
	S3Bucket string // STORAGE_S3_BUCKET
	Region   string // AWS_REGION
}

// AuditConfig configures the audit event sinks. The database sink is always on.
type AuditConfig struct {
	KafkaBrokers []string // AUDIT_KAFKA_BROKERS (CSV); empty disables Kafka
	KafkaTopic   string   // AUDIT_KAFKA_TOPIC
}

// AuthConfig controls how the caller identity is established.
type AuthConfig struct {
	JWTSecret           string // AUTH_JWT_SECRET (HS256)
	AllowHeaderIdentity bool   // AUTH_ALLOW_HEADER_IDENTITY: trust X-User-ID (dev/tests)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath string // SQLite path

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL        time.Duration // how long a given Idempotency-Key is valid
	IdempotencyRetryAfter time.Duration // Retry-After sent for in-flight duplicates

	// Account lifecycle
	AccountPurgeDelay    time.Duration // grace period before purge
	BackupPurgeDays      int           // days until backups must be scrubbed
	UnverifiedAccountTTL time.Duration // age at which unverified signups are purged

	// Retention sweep lock
	SweepLockRedisAddr string        // empty disables the lock
	SweepLockTTL       time.Duration // lock expiry

	// Adapters
	Storage StorageConfig
	Audit   AuditConfig
	Auth    AuthConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "app.db"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL:        getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyRetryAfter: getdur("IDEMPOTENCY_RETRY_AFTER", 2*time.Second),

		// Account lifecycle
		AccountPurgeDelay:    getdur("ACCOUNT_PURGE_DELAY", 30*24*time.Hour),
		BackupPurgeDays:      getint("BACKUP_PURGE_DAYS", 90),
		UnverifiedAccountTTL: getdur("UNVERIFIED_ACCOUNT_TTL", 7*24*time.Hour),

		SweepLockRedisAddr: getenv("SWEEP_LOCK_REDIS_ADDR", ""),
		SweepLockTTL:       getdur("SWEEP_LOCK_TTL", 30*time.Minute),

		Storage: StorageConfig{
			Driver:   strings.ToLower(getenv("STORAGE_DRIVER", "none")),
			LocalDir: getenv("STORAGE_LOCAL_DIR", "data/media"),
			S3Bucket: getenv("STORAGE_S3_BUCKET", ""),
			Region:   getenv("AWS_REGION", ""),
		},
		Audit: AuditConfig{
			KafkaBrokers: splitCSV(getenv("AUDIT_KAFKA_BROKERS", "")),
			KafkaTopic:   getenv("AUDIT_KAFKA_TOPIC", "audit-events"),
		},
		Auth: AuthConfig{
			JWTSecret:           getenv("AUTH_JWT_SECRET", ""),
			AllowHeaderIdentity: getbool("AUTH_ALLOW_HEADER_IDENTITY", false),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-fitness-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.IdempotencyRetryAfter < 0 {
		return cfg, errors.New("IDEMPOTENCY_RETRY_AFTER must be >= 0")
	}
	if cfg.AccountPurgeDelay < 0 {
		return cfg, errors.New("ACCOUNT_PURGE_DELAY must be >= 0")
	}
	if cfg.BackupPurgeDays < 0 {
		return cfg, errors.New("BACKUP_PURGE_DAYS must be >= 0")
	}
	if cfg.UnverifiedAccountTTL <= 0 {
		return cfg, errors.New("UNVERIFIED_ACCOUNT_TTL must be > 0")
	}
	if cfg.SweepLockTTL <= 0 {
		return cfg, errors.New("SWEEP_LOCK_TTL must be > 0")
	}
	switch cfg.Storage.Driver {
	case "none", "local":
	case "s3":
		if strings.TrimSpace(cfg.Storage.S3Bucket) == "" {
			return cfg, errors.New("STORAGE_S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return cfg, errors.New("STORAGE_DRIVER must be one of: none, local, s3")
	}
	if len(cfg.Audit.KafkaBrokers) > 0 && strings.TrimSpace(cfg.Audit.KafkaTopic) == "" {
		return cfg, errors.New("AUDIT_KAFKA_TOPIC must not be empty when brokers are set")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
