package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type slogLogger struct {
	h     slog.Handler
	attrs []slog.Attr
}

// hasStack is satisfied by xerrors values that captured a stack at
// creation time.
type hasStack interface {
	StackPCs() []uintptr
}

func newSlog(opts Options) (Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	if opts.StacktraceLevel == 0 {
		opts.StacktraceLevel = slog.LevelError
	}

	var h slog.Handler
	if opts.JSONFormat {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level, AddSource: true})
	} else {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.Level, AddSource: true})
	}

	h = otelHandler{next: h}
	h = stackHandler{next: h, level: opts.StacktraceLevel}

	attrs := []slog.Attr{slog.String("app", opts.App)}
	if opts.Version != "" {
		attrs = append(attrs, slog.String("version", opts.Version))
	}
	return &slogLogger{h: h, attrs: attrs}, nil
}

func (s *slogLogger) With(kv ...any) Logger {
	add := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			add = append(add, slog.Any(k, kv[i+1]))
		}
	}
	// copy-on-write so loggers are safe to share concurrently
	next := make([]slog.Attr, 0, len(s.attrs)+len(add))
	next = append(next, s.attrs...)
	next = append(next, add...)
	return &slogLogger{h: s.h, attrs: next}
}

func (s *slogLogger) Debug(ctx context.Context, msg string, kv ...any) {
	s.log(ctx, slog.LevelDebug, msg, kv...)
}
func (s *slogLogger) Info(ctx context.Context, msg string, kv ...any) {
	s.log(ctx, slog.LevelInfo, msg, kv...)
}
func (s *slogLogger) Warn(ctx context.Context, msg string, kv ...any) {
	s.log(ctx, slog.LevelWarn, msg, kv...)
}
func (s *slogLogger) Error(ctx context.Context, err error, msg string, kv ...any) {
	if err != nil {
		kv = append(kv, "err", err)
		if chain := errorChain(err); len(chain) > 1 {
			kv = append(kv, "error_chain", chain)
		}
	}
	s.log(ctx, slog.LevelError, msg, kv...)
}
func (s *slogLogger) Sync() error { return nil }

func (s *slogLogger) log(ctx context.Context, lvl slog.Level, msg string, kv ...any) {
	if !s.h.Enabled(ctx, lvl) {
		return
	}
	// skip runtime.Callers, log, and the level method
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), lvl, msg, pcs[0])
	for _, a := range s.attrs {
		r.AddAttrs(a)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		r.AddAttrs(slog.Any(k, kv[i+1]))
	}
	_ = s.h.Handle(ctx, r)
}

func errorChain(err error) []string {
	out := make([]string, 0, 8)
	var prev string
	for e := err; e != nil; e = errors.Unwrap(e) {
		if msg := e.Error(); msg != prev {
			out = append(out, msg)
			prev = msg
		}
	}
	return out
}

// otelHandler stamps trace/span ids onto records when a span is recording.
type otelHandler struct{ next slog.Handler }

func (h otelHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}
func (h otelHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, r)
}
func (h otelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return otelHandler{next: h.next.WithAttrs(attrs)}
}
func (h otelHandler) WithGroup(name string) slog.Handler {
	return otelHandler{next: h.next.WithGroup(name)}
}

// stackHandler renders a stack for records at or above its level,
// preferring a stack captured on the error attribute.
type stackHandler struct {
	next  slog.Handler
	level slog.Level
}

func (h stackHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}
func (h stackHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level {
		var pcs []uintptr
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "err" {
				if hs, ok := a.Value.Any().(hasStack); ok && hs != nil {
					pcs = hs.StackPCs()
					return false
				}
			}
			return true
		})
		if len(pcs) > 0 {
			r.AddAttrs(slog.String("stack", renderPCs(pcs)))
		}
	}
	return h.next.Handle(ctx, r)
}
func (h stackHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return stackHandler{next: h.next.WithAttrs(attrs), level: h.level}
}
func (h stackHandler) WithGroup(name string) slog.Handler {
	return stackHandler{next: h.next.WithGroup(name), level: h.level}
}

func renderPCs(pcs []uintptr) string {
	frames := runtime.CallersFrames(pcs)
	var b strings.Builder
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, "runtime.") {
			break
		}
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", fr.Function, fr.File, fr.Line)
		if !more {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
