// Package logger builds the service's structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a logger writing to stdout: human-readable text at debug
// level in dev, JSON at info level everywhere else.
func New(env string) *slog.Logger {
	return NewWithWriter(os.Stdout, env)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, env string) *slog.Logger {
	if env == "dev" || env == "" {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
