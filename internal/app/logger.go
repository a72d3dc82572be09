package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide structured logger. Production and any
// run with LOG_FORMAT=json emit JSON for the log pipeline; local runs get
// the text handler. Source locations are always attached since the services
// log through one shared logger rather than per-package ones.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
