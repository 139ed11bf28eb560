package config

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Level returns the log level selected by DEBUG and LOG_LEVEL
func (c *Config) Level() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(c.LogLevel) {
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

// NewLogger returns a colored console logger in development and a JSON
// logger otherwise.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	if c.IsDevelopment() {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      c.Level(),
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}
