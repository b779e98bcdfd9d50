package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelnet/zeronode/internal/health"
	"github.com/kestrelnet/zeronode/internal/httpmw"
	"github.com/kestrelnet/zeronode/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Routes registers the application routes (auth gateway, content
	// serving) on the router.
	Routes func(chi.Router)

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	Health    health.Probe
	Readiness health.Probe
}
