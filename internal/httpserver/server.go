// Package httpserver assembles the node's public listener: routes plus
// the middleware chain, with a Start/stop lifecycle owned by main.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kestrelnet/zeronode/internal/health"
	"github.com/kestrelnet/zeronode/internal/httpmw"
	"github.com/kestrelnet/zeronode/internal/xerrors"
)

// NewHandler builds an HTTP handler with routes + middleware.
// main() owns *http.Server so it can do graceful shutdown.
func NewHandler(opts *Options) http.Handler {
	r := chi.NewRouter()

	// Compress text responses (site HTML/CSS/JS/JSON)
	r.Use(middleware.Compress(5,
		"text/html",
		"text/css",
		"application/javascript",
		"text/javascript",
		"application/json",
		"text/plain",
	))

	// Annotate logger and tracer with http.route from the chi route pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	r.Use(httpmw.AccessLog())

	// Everything on this listener is GET with query params; bodies are noise
	r.Use(httpmw.MaxBody(1024))

	if opts.Health != nil {
		r.Get("/-/healthy", health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.ReadyzHandler(opts.Readiness))
	}

	if opts.Routes != nil {
		opts.Routes(r)
	}

	// Middleware (outermost first in wrapping order)
	var h http.Handler = r

	// Request-scoped logging (inner so it sees trace_id, etc)
	h = httpmw.WithLogger(opts.Logger)(h)

	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}

	// add trace-id headers to any requests with a recording trace
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	// Decide which requests get traced
	shouldTrace := func(p string) bool {
		// health checks are polled constantly; never trace them
		return p != "/-/healthy" && p != "/-/ready"
	}

	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTrace(r.URL.Path)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames the span later to the final route pattern
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)

	// Rate limiting (after client IP mw so it uses the resolved IP)
	if opts.RateLimitMW != nil {
		h = opts.RateLimitMW(h)
	}

	// Client IP resolution (must run before the rate limiter and logging)
	h = httpmw.ClientIPWithOptions(opts.ClientIPOpts)(h)

	// Request ID (outer so everything downstream sees it)
	h = httpmw.RequestID("X-Request-Id")(h)

	if opts.UseRecoverMW {
		h = httpmw.Recover(opts.Logger, opts.OnPanic)(h)
	}

	// Security headers outermost so they land on every response
	h = httpmw.SecurityHeaders(h)

	return h
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server.
// Returns stop(ctx) for graceful shutdown.
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = 43110
	}
	addr := fmt.Sprintf(":%d", port)

	handler := NewHandler(opts)
	srv := NewServer(addr, handler)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listening on %s", addr)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
