// Package logger provides structured logging setup for the hub daemon.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/AgentHub/internal/config"
)

// New creates a *slog.Logger from the given Logging config. Output is
// JSON with a "service" attribute on every record. When cfg.Async is
// true the handler writes via a buffered channel; the caller must call
// Closer.Close() on shutdown to flush remaining records.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return NewTo(cfg, os.Stdout)
}

// NewTo is New writing to the given destination (the daemon log file).
func NewTo(cfg config.Logging, out io.Writer) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
	})

	var closer Closer = nopCloser{}
	var h slog.Handler = handler
	if cfg.Async {
		async := NewAsyncHandler(handler, 10000)
		h = async
		closer = async
	}

	service := cfg.Service
	if service == "" {
		service = "agenthub"
	}
	return slog.New(h).With("service", service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
