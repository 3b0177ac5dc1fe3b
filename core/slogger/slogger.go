// Package slogger carries the interpreter's diagnostic logger in a context.
// Records are written by a charmbracelet/log handler behind log/slog and, once
// a session starts, are tagged with its event log session ID.
package slogger

import (
	"context"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type contextKey struct{}

// SessionKey is the attribute holding the session ID.
const SessionKey = "session"

// Config holds logger configuration.
type Config struct {
	// Verbosity is the number of -v flags: errors only, then info, then debug.
	Verbosity int

	// Output defaults to os.Stderr.
	Output io.Writer
}

func (c Config) level() charmlog.Level {
	switch {
	case c.Verbosity >= 2:
		return charmlog.DebugLevel
	case c.Verbosity == 1:
		return charmlog.InfoLevel
	default:
		return charmlog.ErrorLevel
	}
}

// New creates a logger writing to cfg.Output.
func New(cfg Config) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	return slog.New(charmlog.NewWithOptions(output, charmlog.Options{
		Level:  cfg.level(),
		Prefix: "myshell",
	}))
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// WithSession tags the context's logger with sessionID. An empty ID leaves
// ctx unchanged.
func WithSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return WithLogger(ctx, FromContext(ctx).With(SessionKey, sessionID))
}

// FromContext retrieves the logger from context, or one that discards
// everything if none is set.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.New(discardHandler{})
}

// L is shorthand for FromContext.
func L(ctx context.Context) *slog.Logger {
	return FromContext(ctx)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
