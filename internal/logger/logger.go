// Package logger provides a small wrapper around slog for structured logging.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar)

// Logger is the global logger instance.
var Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

// ParseLevel maps a config string to a slog level. Unknown values map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// SetLevel changes the minimum level of the global logger.
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

// Setup replaces the global logger with one writing to w. json selects the
// JSON handler instead of text.
func Setup(w io.Writer, lvl string, json bool) {
	level.Set(ParseLevel(lvl))
	opts := &slog.HandlerOptions{Level: level}
	if json {
		Logger = slog.New(slog.NewJSONHandler(w, opts))
		return
	}
	Logger = slog.New(slog.NewTextHandler(w, opts))
}

// With returns a child logger carrying args on every record.
func With(args ...any) *slog.Logger {
	return Logger.With(args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}
