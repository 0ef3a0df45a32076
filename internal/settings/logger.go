// SPDX-License-Identifier: AGPL-3.0-or-later
package settings

import (
	"io"
	"log/slog"
)

// NewLogger builds the diagnostic logger described by the settings. It does
// not install itself as the default logger.
func (s *Settings) NewLogger(out io.Writer) *slog.Logger {
	var level slog.Level
	switch s.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if s.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}
