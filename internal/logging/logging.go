// Package logging constructs the zerolog loggers used across the hub.
// Every subsystem gets a component-tagged logger so operators can filter
// the JSON event stream by origin.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a JSON logger tagged with the component and instance names.
// Output goes to stdout; timestamps are RFC3339 UTC.
func New(component, instance string) zerolog.Logger {
	return NewWithWriter(os.Stdout, component, instance)
}

// NewWithWriter is New with an explicit destination, for tests.
func NewWithWriter(w io.Writer, component, instance string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(w).With().
		Timestamp().
		Str("component", component)
	if instance != "" {
		logger = logger.Str("instance", instance)
	}
	return logger.Logger()
}

// SetLevel applies a global level parsed from a config string.
// Unknown values fall back to info.
func SetLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
