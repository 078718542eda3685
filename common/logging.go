package common

import (
	"io"
	"log/slog"
	"os"
)

// Version is set at build time with -ldflags "-X github.com/ruteri/assetcache/common.Version=..."
var Version = "dev"

// LoggingOpts configures the process logger.
type LoggingOpts struct {
	Debug   bool
	JSON    bool
	Service string
	Version string

	// Output defaults to os.Stderr, keeping stdout free for command output.
	Output io.Writer
}

// SetupLogger builds a text or JSON slog logger tagged with the service and version.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	if opts == nil {
		opts = &LoggingOpts{}
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
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
