package httpmw

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrelnet/zeronode/internal/log"
)

// responseWriter wraps http.ResponseWriter to capture status and bytes written.
type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	// If WriteHeader hasn't been called yet, default to 200.
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// support Flush if the underlying writer does.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// support Hijack (websockets, etc).
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}

// WithLogger derives a request-scoped logger carrying request ID,
// client address, method, and path, and stores it in the context.
// Query strings are deliberately absent: auth keys travel there.
func WithLogger(base log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			reqID := RequestIDFromContext(ctx)
			clientAddr := ClientIPFromContext(ctx)
			if clientAddr == "" {
				clientAddr = r.RemoteAddr
				if host, _, err := net.SplitHostPort(clientAddr); err == nil {
					clientAddr = host
				}
			}

			if span := trace.SpanFromContext(ctx); span != nil && span.IsRecording() {
				span.SetAttributes(
					attribute.String("request_id", reqID),
					attribute.String("client.address", clientAddr),
					attribute.String("server.address", r.Host),
				)
			}

			L := base.With(
				"request_id", reqID,
				"client.address", clientAddr,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
			)
			ctx = log.WithContext(ctx, L)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog emits one structured line per completed request, using the
// request-scoped logger installed by WithLogger.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			var reqBodySize int64
			if r.ContentLength > 0 {
				reqBodySize = r.ContentLength
			}

			rw := &responseWriter{ResponseWriter: w}
			next.ServeHTTP(rw, r)

			ctx := r.Context()
			L := log.FromContext(ctx)

			// health endpoints are polled constantly; skip them
			if r.URL.Path == "/-/ready" || r.URL.Path == "/-/healthy" {
				return
			}

			status := rw.status
			if status == 0 {
				status = http.StatusOK
			}

			routePat := ""
			if rc := chi.RouteContext(ctx); rc != nil {
				routePat = rc.RoutePattern()
			}
			if routePat == "" {
				routePat = r.URL.Path
			}

			L.Info(ctx, "http request",
				"http.response.status_code", status,
				"http.server.request.duration", time.Since(start).Seconds(),
				"http.response.body.size", rw.bytes,
				"http.request.body.size", reqBodySize,
				"http.route", routePat,
			)
		})
	}
}
