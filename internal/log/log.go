package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger is the logging surface the rest of the node depends on. Every
// method takes a context so trace identifiers can be attached when a
// request span is recording.
type Logger interface {
	With(kv ...any) Logger

	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, err error, msg string, kv ...any)

	Sync() error
}

type Options struct {
	App             string
	Version         string
	Level           slog.Level
	StacktraceLevel slog.Level
	JSONFormat      bool
	Writer          io.Writer
}

func New(opts Options) (Logger, error) { return newSlog(opts) }

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %s (valid levels are debug|info|warn|error)", s)
	}
}
