// Package log installs the process-wide slog logger shared by the composer
// binaries.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format values accepted by Setup.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Setup makes a logger for service the slog default and returns it. Levels
// are parsed by slog ("debug", "WARN", "info+2"); anything unparsable falls
// back to info. The json format is meant for the BFF behind a log shipper.
func Setup(service, level, format string) *slog.Logger {
	return setup(os.Stderr, service, level, format)
}

func setup(w io.Writer, service, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, FormatJSON) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)

	return logger
}

// WithModule tags the current default logger with a module name. Call it
// after Setup so the configured level and format apply.
func WithModule(module string) *slog.Logger {
	return slog.Default().With("module", module)
}
