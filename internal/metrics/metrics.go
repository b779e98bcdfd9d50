// Package metrics owns the node's private prometheus registry: HTTP
// server metrics with safe labels plus the registry/auth domain
// counters.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrelnet/zeronode/internal/version"
)

type ServerMetrics struct {
	reg      *prometheus.Registry
	handler  http.Handler
	inflight prometheus.Gauge
	reqTotal *prometheus.CounterVec
	reqDur   *prometheus.HistogramVec

	httpPanicTotal       prometheus.Counter
	errorsTotal          *prometheus.CounterVec
	ratelimitDeniedTotal prometheus.Counter
	buildInfo            *prometheus.GaugeVec
	profilingActive      prometheus.Gauge

	// domain metrics
	sitesActive           prometheus.Gauge
	siteActivationsTotal  prometheus.Counter
	activationErrorsTotal *prometheus.CounterVec
	nonceBindsTotal       prometheus.Counter
	authRequestsTotal     *prometheus.CounterVec
	bootstrapSitesTotal   *prometheus.CounterVec
	schemaConnsOpen       prometheus.Gauge
}

// New returns a fresh registry + standard collectors + HTTP metrics.
// Safe labels only (method, route, code) to avoid path/cardinality
// explosions; addresses and nonces never become label values.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "version", "commit", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		sitesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sites_active",
			Help: "Number of sites with a running actor",
		}),
		siteActivationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "site_activations_total",
			Help: "Total successful site activations",
		}),
		activationErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "site_activation_errors_total",
			Help: "Total failed site activations by reason",
		}, []string{"reason"}),
		nonceBindsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nonce_binds_total",
			Help: "Total nonce-to-site bindings through the registry",
		}),
		authRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_requests_total",
			Help: "Total /auth requests by outcome",
		}, []string{"outcome"}),
		bootstrapSitesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bootstrap_sites_total",
			Help: "Bootstrap snapshot entries by result",
		}, []string{"result"}),
		schemaConnsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schema_connections_open",
			Help: "Open per-site database connections",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.httpPanicTotal,
		m.errorsTotal,
		m.ratelimitDeniedTotal,
		m.buildInfo,
		m.profilingActive,
		m.sitesActive,
		m.siteActivationsTotal,
		m.activationErrorsTotal,
		m.nonceBindsTotal,
		m.authRequestsTotal,
		m.bootstrapSitesTotal,
		m.schemaConnsOpen,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":        app,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"build_date": vi.BuildDate,
		"go_version": vi.GoVersion,
		"vcs_dirty":  dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

// SiteActivated records one successful activation and the new number
// of active sites.
func (m *ServerMetrics) SiteActivated(active int) {
	m.siteActivationsTotal.Inc()
	m.sitesActive.Set(float64(active))
}

func (m *ServerMetrics) IncActivationError(reason string) {
	m.activationErrorsTotal.WithLabelValues(reason).Inc()
}

func (m *ServerMetrics) IncNonceBind() {
	m.nonceBindsTotal.Inc()
}

func (m *ServerMetrics) IncAuthRequest(outcome string) {
	m.authRequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *ServerMetrics) IncBootstrapSite(result string) {
	m.bootstrapSitesTotal.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) SetSchemaConnectionsOpen(n int) {
	m.schemaConnsOpen.Set(float64(n))
}
