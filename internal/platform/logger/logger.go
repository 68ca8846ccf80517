package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"reyu/internal/platform/config"
)

// New builds the process logger: JSON in production, text elsewhere, unless
// LOG_FORMAT says otherwise.
func New(cfg *config.Config) *slog.Logger {
	return newWithWriter(os.Stdout, cfg)
}

func newWithWriter(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}

	format := cfg.Log.Format
	if format == "" {
		format = "text"
		if cfg.Server.IsProduction() {
			format = "json"
		}
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "reyu")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
