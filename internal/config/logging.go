package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// NewLogger writes human readable text to console and, when jsonOut is not
// nil, the same records as JSON lines to jsonOut.
func NewLogger(console, jsonOut io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	text := slog.NewTextHandler(console, opts)
	if jsonOut == nil {
		return slog.New(text)
	}
	return slog.New(slogmulti.Fanout(text, slog.NewJSONHandler(jsonOut, opts)))
}

// SetupLogger logs to stderr and appends JSON lines to logFile. If logFile
// is empty or cannot be opened only stderr is used. The returned func
// closes the file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	noop := func() error { return nil }
	if logFile == "" {
		return NewLogger(os.Stderr, nil, level), noop
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := NewLogger(os.Stderr, nil, level)
		logger.Warn("log file unavailable, logging to stderr only", "file", logFile, "error", err)
		return logger, noop
	}
	return NewLogger(os.Stderr, f, level), f.Close
}
