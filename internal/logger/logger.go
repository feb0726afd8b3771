// Package logger builds the zerolog loggers used across tandem
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the project-wide logging type
type Logger = zerolog.Logger

// Options configures the root logger
type Options struct {
	Level  string    // trace, debug, info, warn, error; unknown values mean info
	Format string    // "console" or "json"
	Node   string    // stamped on every line when set
	Writer io.Writer // defaults to stderr
}

// New builds a root logger from opt
func New(opt Options) Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if strings.ToLower(opt.Format) == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(ParseLevel(opt.Level)).With().Timestamp()
	if opt.Node != "" {
		ctx = ctx.Str("node", opt.Node)
	}
	return ctx.Logger()
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return zerolog.Nop()
}

// Named returns a child logger with a component field
func Named(root Logger, component string) Logger {
	if component == "" {
		return root
	}
	return root.With().Str("component", component).Logger()
}

// Event writes a structured event in the shape shared by all components:
// an event_type plus arbitrary fields
func Event(l Logger, eventType string, fields map[string]interface{}) {
	l.Info().Str("event_type", eventType).Fields(fields).Msg(eventType)
}

// ParseLevel supports string-only levels
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
