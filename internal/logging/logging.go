// Package logging builds the zap loggers used by the capcanon binaries and
// hands them to the library packages.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xdao.co/capcanon/storage"
)

// EnvLogLevel overrides the configured level when set.
const EnvLogLevel = "CAPCANON_LOG_LEVEL"

type Profile int

const (
	// ProfileCLI logs human-readable lines to stderr at warn by default.
	ProfileCLI Profile = iota
	// ProfileDaemon logs JSON to stderr at info by default.
	ProfileDaemon
)

// New builds a logger for profile. level may be empty; EnvLogLevel wins over
// it when set to a recognized level.
func New(profile Profile, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch profile {
	case ProfileDaemon:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		cfg.DisableStacktrace = true
		cfg.EncoderConfig.TimeKey = ""
	}
	cfg.OutputPaths = []string{"stderr"}

	if level != "" {
		lvl, ok := ParseLevel(level)
		if !ok {
			return nil, fmt.Errorf("logging: unknown level %q", level)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

// Install makes l the logger of every library package that logs.
func Install(l *zap.Logger) {
	storage.SetLogger(l.Named("storage"))
}

// ParseLevel accepts the usual level names, case-insensitively.
func ParseLevel(raw string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "off", "none", "disabled":
		return zapcore.FatalLevel + 1, true
	default:
		return zapcore.InfoLevel, false
	}
}
