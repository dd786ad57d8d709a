// Package logging constructs the service's structured logger.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger returns a JSON slog.Logger writing to w at the given level.
// Supported levels: debug, info, warn, error. Anything else means info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
