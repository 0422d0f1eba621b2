// Package logging provides the slog-based logging setup used across reqflow,
// plus an adapter for components that speak Watermill's logging contract.
package logging

import (
	"io"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

var logLevelMapping = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// New returns a text slog.Logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Default returns the logger used when a component was not given one.
func Default(log *slog.Logger) *slog.Logger {
	if log != nil {
		return log
	}
	return slog.Default()
}

// NewWatermillAdapter wraps a slog.Logger so it satisfies Watermill's
// LoggerAdapter. The in-process channel transport is Watermill-backed and
// logs through this bridge.
func NewWatermillAdapter(log *slog.Logger) watermill.LoggerAdapter {
	if log == nil {
		panic("reqflow: slog logger cannot be nil")
	}
	return watermill.NewSlogLoggerWithLevelMapping(log, logLevelMapping)
}
