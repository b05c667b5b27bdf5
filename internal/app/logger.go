package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process logger, tagged with the service name so the
// API and worker binaries can be told apart in shared log streams. Outside
// production the level drops to debug so reconciliation traces show up
// during development.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if !cfg.IsProduction() {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "meridian"))
}
