// Package common contains shared helpers used across services: structured
// logger setup and build version information.
package common

import (
	"log/slog"
	"os"
)

// PackageName identifies this service in metrics and logs.
const PackageName = "recovery-backend"

// Version is set at build time via -ldflags.
var Version = "dev"

// LoggingOpts configures the process-wide structured logger.
type LoggingOpts struct {
	// Debug lowers the handler level to slog.LevelDebug.
	Debug bool

	// JSON selects the JSON handler instead of text.
	JSON bool

	// Service is added as a "service" attribute on every record when set.
	Service string

	// Version is added as a "version" attribute on every record when set.
	Version string
}

// SetupLogger creates a slog.Logger writing to stderr according to opts.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	return logger
}
