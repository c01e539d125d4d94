// Package logger builds the service's zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/akave-ai/gameevents/internal/config"
)

// New returns a logger writing JSON to stderr, or human readable output when
// the format is "console".
func New(cfg *config.ObservabilityConfig) zerolog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

func NewWithWriter(cfg *config.ObservabilityConfig, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if cfg.Logging.Format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(cfg.LogLevel()).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("env", cfg.Environment).
		Logger()
}
