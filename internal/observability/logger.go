package observability

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a key/value logger: Info("msg", "key", value, ...).
type Logger struct {
	slog   *slog.Logger
	closer io.Closer
}

type Options struct {
	LogPath    string
	LogLevel   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Console receives every line in addition to the rotating file.
	// Defaults to os.Stdout.
	Console io.Writer
}

func NewLogger(opts Options) (*Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	var (
		out    io.Writer = console
		closer io.Closer
	)
	if opts.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogPath), 0o755); err != nil {
			return nil, err
		}
		fileWriter := &lumberjack.Logger{
			Filename:   opts.LogPath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		out = io.MultiWriter(console, fileWriter)
		closer = fileWriter
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: parseLevel(opts.LogLevel)})
	return &Logger{slog: slog.New(handler), closer: closer}, nil
}

// NewNop discards everything. Used by tests and as a nil-safe fallback.
func NewNop() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// With returns a logger that adds fields to every line.
func (l *Logger) With(fields ...any) *Logger {
	return &Logger{slog: l.slog.With(fields...), closer: l.closer}
}

func (l *Logger) Debug(msg string, fields ...any) {
	l.slog.Debug(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...any) {
	l.slog.Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...any) {
	l.slog.Warn(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...any) {
	l.slog.Error(msg, fields...)
}

// Close flushes and closes the rotating file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
