// Package monitoring builds the broker's structured logger and runs the
// periodic connection/subscription/resource stats sampler.
package monitoring

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// LoggerConfig selects the level and output format for NewLogger.
type LoggerConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text, pretty
}

// NewLogger builds a zerolog.Logger per LoggerConfig. Unknown levels fall
// back to info; unknown formats fall back to JSON.
func NewLogger(cfg LoggerConfig) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	switch cfg.Format {
	case "pretty", "text":
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).With().Timestamp().Str("service", "natsd").Logger()
}

// RecoverPanic recovers a panic in the caller's goroutine, logs it with a
// stack trace, and swallows it so the connection's cleanup path still runs.
// Callers defer this as the first deferred call so it executes last.
func RecoverPanic(logger zerolog.Logger, component string, fields map[string]any) {
	r := recover()
	if r == nil {
		return
	}
	event := logger.Error().
		Interface("panic", r).
		Str("component", component).
		Str("stack", string(debug.Stack()))
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg("recovered panic")
}
