// Package logging wraps zerolog construction so every package in rserv
// logs through the same structured logger rather than reaching for
// fmt.Printf or the stdlib log package ad hoc.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger at the given level ("debug", "info", "warn",
// "error"; unrecognised values fall back to "info"). When pretty is true
// (typically a local/dev run) output goes through zerolog's
// ConsoleWriter; otherwise it stays newline-delimited JSON, suitable for
// ingestion by a log collector.
func New(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, used as a safe default
// for package-level constructors invoked without an explicit logger
// (e.g. in tests).
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
