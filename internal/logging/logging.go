// Package logging builds the base zerolog.Logger used throughout spoolerd.
// Every component takes a zerolog.Logger with a "component" field rather
// than reaching for a package-level global, so tests can inject their own
// sink.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a base logger writing to w (os.Stderr in production, a
// buffer in tests) at the given level. An unrecognized level name falls
// back to info rather than failing startup.
func New(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// NewDefault builds a production logger writing to stderr at info level.
func NewDefault() zerolog.Logger {
	return New(os.Stderr, "info")
}

// Component returns a child logger tagged with the given component name.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
