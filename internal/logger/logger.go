package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log is the global logger instance
var Log *slog.Logger

// level is shared by every handler created through this package so that
// SetLevel takes effect without rebuilding the logger.
var level slog.LevelVar

// Init initializes the global logger on stderr with the specified level.
// Stdout is left to the CLI for the run summary.
func Init(levelStr string) {
	InitWithWriter(levelStr, os.Stderr)
}

// InitWithWriter initializes the global logger writing to w.
func InitWithWriter(levelStr string, w io.Writer) {
	SetLevel(levelStr)
	Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: &level,
	}))
}

// SetLevel changes the log level at runtime. Valid values: debug, info, warn, error.
// Invalid values fall back to info.
func SetLevel(levelStr string) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	level.Set(lvl)
}

// Enabled reports whether messages at lvl would be written.
func Enabled(lvl slog.Level) bool {
	return Log != nil && lvl >= level.Level()
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	if Log != nil {
		Log.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...any) {
	if Log != nil {
		Log.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	if Log != nil {
		Log.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...any) {
	if Log != nil {
		Log.Error(msg, args...)
	}
}
