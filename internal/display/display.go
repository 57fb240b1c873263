// Package display provides unified log output for ralph-agent.
// Every component logs through slog; the Handler here renders records as
// CI-friendly lines: "[name] HH:MM:SS LEVEL   message key=value".
package display

import (
	"context"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// LoggerKey is the attribute that names the component emitting a record.
const LoggerKey = "logger"

// Options configures a Handler
type Options struct {
	Level   slog.Leveler
	NoColor bool
}

// ColorEnabled reports whether colored output should be used for stdout.
// Color is off when --no-color was passed, NO_COLOR is set, or stdout is
// not a terminal.
func ColorEnabled(noColorFlag bool) bool {
	if noColorFlag {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// NewLogger creates a logger writing to w with the given component name
func NewLogger(w io.Writer, name string, opts Options) *slog.Logger {
	return slog.New(NewHandler(w, opts)).With(LoggerKey, name)
}

// Named returns a child logger reporting under a different component name
func Named(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(LoggerKey, name)
}

// Discard returns a logger that drops everything, for tests and optional deps
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Section prints a banner around a workflow phase
func Section(logger *slog.Logger, title string) {
	ctx := context.Background()
	logger.Log(ctx, slog.LevelInfo, SectionRule)
	logger.Log(ctx, slog.LevelInfo, title)
	logger.Log(ctx, slog.LevelInfo, SectionRule)
}
