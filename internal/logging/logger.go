// Package logging builds the zerolog.Logger every other package logs
// through, grounded on the teacher's internal/shared/monitoring/logger.go.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/0790486/meshnode/internal/config"
)

// New builds a zerolog.Logger from cfg's level and format, with
// timestamp and caller fields, the way the teacher's NewLogger does.
func New(cfg *config.Config) zerolog.Logger {
	var output io.Writer = os.Stdout
	if cfg.LogFormat == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(cfg.ZerologLevel())

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", "meshnode").
		Logger()
}

// RecoverPanic logs and swallows a panic recovered from a deferred
// call, keeping the caller's goroutine alive. The event loop wraps
// every dispatched handler in this (spec.md section 4.5: a malformed
// frame or a handler bug must never take down the single-threaded
// core).
func RecoverPanic(logger zerolog.Logger, site string) {
	if r := recover(); r != nil {
		logger.Error().
			Str("site", site).
			Interface("panic", r).
			Str("stack", string(debug.Stack())).
			Msg("recovered panic, continuing event loop")
	}
}
