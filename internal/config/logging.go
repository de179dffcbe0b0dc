package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger: human-readable text on stderr plus
// JSON lines appended to logFile for ingestion. The returned cleanup closes
// the file. When the file cannot be opened the logger degrades to
// stderr-only instead of failing startup.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	stderr := slog.NewTextHandler(os.Stderr, handlerOptions(level))

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Error("failed to open log file, using stderr only", "error", err, "file", logFile)
		return slog.New(stderr), func() error { return nil }
	}

	logger := slog.New(slogmulti.Fanout(
		stderr,
		slog.NewJSONHandler(file, handlerOptions(level)),
	))
	return logger, file.Close
}

// SetupLoggerWithWriters builds the same fanout over arbitrary writers so
// tests can capture both streams.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(stderr, handlerOptions(level)),
		slog.NewJSONHandler(file, handlerOptions(level)),
	))
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		// Source positions are only worth the log volume when debugging.
		AddSource: level <= slog.LevelDebug,
	}
}
