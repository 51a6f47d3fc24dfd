// Package obs wires up the ambient observability stack: structured logging,
// distributed tracing and Prometheus metrics, shared by every component.
package obs

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogConfig controls how the root logger is constructed.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string
	// Pretty enables human-readable console output instead of JSON, for
	// local development.
	Pretty bool
}

// DefaultLogConfig returns sensible production defaults: info level, JSON
// output.
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info"}
}

// NewLogger builds the root zerolog.Logger for the process. Every component
// derives its own sub-logger from this one via .With().Str("component", ...),
// never reaching for a package-level global except at the composition root.
func NewLogger(cfg LogConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	logger = logger.Level(parseLevel(cfg.Level))
	return logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a sub-logger tagged with the owning component's name,
// the way every constructor in this repo names its log lines.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
