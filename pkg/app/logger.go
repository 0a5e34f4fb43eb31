package app

import (
	"io"
	"log/slog"
	"strings"

	"github.com/flemzord/mcpexec/internal/config"
	"github.com/flemzord/mcpexec/internal/security"
)

// NewLogger returns the root logger. Every record passes through the
// redactor before it is written.
func NewLogger(cfg config.LogConfig, w io.Writer, redactor *security.Redactor) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var inner slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	if redactor == nil {
		redactor = security.NewRedactor()
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// ParseLevel maps a level name to a slog.Level. Unknown names are info.
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
