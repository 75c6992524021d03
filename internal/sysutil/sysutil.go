// Package sysutil holds process-level helpers shared by the server and the
// retention sweep binaries: log level, local .env loading and build version.
package sysutil

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLogLevel maps a LOG_LEVEL value to a zerolog level. Matching is
// case-insensitive; empty and unknown values yield info, the latter with
// known == false.
func ParseLogLevel(lvl string) (level zerolog.Level, known bool) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zerolog.DebugLevel, true
	case "info", "":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "fatal":
		return zerolog.FatalLevel, true
	case "panic":
		return zerolog.PanicLevel, true
	default:
		return zerolog.InfoLevel, false
	}
}

// SetLogLevel sets the global zerolog level from a LOG_LEVEL value.
func SetLogLevel(lvl string) {
	level, known := ParseLogLevel(lvl)
	zerolog.SetGlobalLevel(level)
	if !known {
		log.Warn().Str("log_level", lvl).Msg("unknown log level, using info")
	}
}

// IsTruthy reports whether an environment value means true.
// Accepted values (case-insensitive): "1", "true", "yes", "y", "on".
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// FirstNonEmpty returns the first value that is not blank, unmodified.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// LoadLocalEnv loads a .env file from the working directory when RUN_LOCAL is
// truthy. Variables already set in the environment win. It reports whether a
// file was loaded.
func LoadLocalEnv() bool {
	if !IsTruthy(os.Getenv("RUN_LOCAL")) {
		return false
	}
	return godotenv.Load() == nil
}

// ServiceVersion is the version reported to tracing: APP_VERSION when set,
// then the linker-stamped build version, then "dev".
func ServiceVersion(build string) string {
	return FirstNonEmpty(os.Getenv("APP_VERSION"), build, "dev")
}
