package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/leadboard/internal/config"
	"github.com/rs/zerolog"
)

// New creates a new zerolog logger with structured output
func New(cfg config.LogConfig, service string) zerolog.Logger {
	return NewWithWriter(cfg, service, os.Stdout)
}

// NewWithWriter creates a logger that writes to w
func NewWithWriter(cfg config.LogConfig, service string, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	// Use pretty console output in development
	if cfg.Format == "pretty" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
			Level(parseLevel(cfg.Level)).
			With().
			Timestamp().
			Caller().
			Str("service", service).
			Logger()
	}

	// JSON output for production
	return zerolog.New(w).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
