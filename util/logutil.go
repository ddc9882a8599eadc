package util

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a text-handler slog.Logger writing to stderr at the
// given level ("debug", "info", "warn", "error"; anything else falls
// back to info). Callers pass the result straight to whatever holds it
// as a constructor argument rather than installing it as the process
// default.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
