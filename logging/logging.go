// Package logging builds the zap loggers the server, client and CLI share.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EnvLogLevel  = "LIQUIDNET_LOG_LEVEL"
	EnvLogFormat = "LIQUIDNET_LOG_FORMAT"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Config struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// Development turns on stack traces for warnings and caller-friendly
	// console output.
	Development bool `toml:"development"`
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: FormatJSON}
}

// New builds a logger from cfg after applying the environment overrides.
func New(cfg Config) (*zap.Logger, error) {
	applyEnvOverrides(&cfg)

	level, ok := parseLevel(cfg.Level)
	if !ok {
		return nil, fmt.Errorf("logging: unknown level %q", cfg.Level)
	}
	format, ok := parseFormat(cfg.Format)
	if !ok {
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = format
	if format == FormatConsole {
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return zc.Build()
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Format = v
	}
}

func parseLevel(raw string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return zap.InfoLevel, true
	case "debug":
		return zap.DebugLevel, true
	case "warn", "warning":
		return zap.WarnLevel, true
	case "error":
		return zap.ErrorLevel, true
	case "off", "none", "disabled":
		return zapcore.InvalidLevel, true
	default:
		return zap.InfoLevel, false
	}
}

func parseFormat(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", FormatJSON:
		return FormatJSON, true
	case FormatConsole, "text":
		return FormatConsole, true
	default:
		return "", false
	}
}
