package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelnet/zeronode/internal/authhttp"
	"github.com/kestrelnet/zeronode/internal/cfg"
	"github.com/kestrelnet/zeronode/internal/health"
	"github.com/kestrelnet/zeronode/internal/httpserver"
	"github.com/kestrelnet/zeronode/internal/log"
	"github.com/kestrelnet/zeronode/internal/metrics"
	"github.com/kestrelnet/zeronode/internal/opshttp"
	"github.com/kestrelnet/zeronode/internal/otelx"
	"github.com/kestrelnet/zeronode/internal/prof"
	"github.com/kestrelnet/zeronode/internal/ratelimit"
	"github.com/kestrelnet/zeronode/internal/registry"
	"github.com/kestrelnet/zeronode/internal/schema"
	"github.com/kestrelnet/zeronode/internal/sitehttp"
	v "github.com/kestrelnet/zeronode/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, build_date=%s, go=%s, dirty=%v)\n",
			v.AppName, vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, "ZERONODE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:        v.AppName,
		Version:    vi.Version,
		Level:      lvl,
		JSONFormat: conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing node",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"data_dir", conf.DataDir,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
	)

	// Setup pyroscope profiling
	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":     v.AppName,
			"version": vi.Version,
			"commit":  vi.Commit,
		},
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Insecure is fine: the collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:  conf.EnableTracing,
		Endpoint: conf.OTLPEndpoint,
		Insecure: true,
		Sample:   conf.TraceSample,
		Service:  v.AppName,
		Version:  vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, &vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	// Load the persisted site table
	snapshot, err := registry.LoadSnapshot(filepath.Join(conf.DataDir, registry.SnapshotFilename))
	if err != nil {
		L.Error(ctx, err, "failed to load site snapshot")
		os.Exit(1)
	}

	schemas := schema.NewStore(L)
	defer schemas.Close()

	reg := registry.Start(ctx, registry.Options{
		DataDir:           conf.DataDir,
		Storage:           snapshot,
		Schemas:           schemas,
		ActivationTimeout: conf.ActivationTimeout,
		Logger:            L,
		Hooks: registry.Hooks{
			SiteActivated: func(active int) {
				m.SiteActivated(active)
				m.SetSchemaConnectionsOpen(schemas.Open())
			},
			ActivationError: m.IncActivationError,
			NonceBound:      m.IncNonceBind,
			BootstrapSite:   m.IncBootstrapSite,
		},
	})

	// Bring up the site table before accepting traffic. Individual
	// sites may fail; the node still starts.
	var bootstrapped atomic.Bool
	if err := reg.Bootstrap(ctx); err != nil {
		L.Error(ctx, err, "bootstrap aborted")
		os.Exit(1)
	}
	bootstrapped.Store(true)
	L.Info(ctx, "bootstrap complete", "snapshot_sites", len(snapshot))

	// Auth gateway + content routes
	audit := authhttp.NewAudit(conf.NonceTTL, authhttp.DefaultAuditCapacity)
	authHandler := authhttp.Handler(authhttp.Options{
		AccessKey: conf.AccessKey,
		Registry:  reg,
		Audit:     audit,
		Logger:    L,
		OnOutcome: m.IncAuthRequest,
	})
	contentHandler := sitehttp.New(sitehttp.Options{Registry: reg, Logger: L})

	// Shutdown gate flips readiness during drain
	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.CheckFunc(func(context.Context) error {
			if !bootstrapped.Load() {
				return fmt.Errorf("bootstrap incomplete")
			}
			return nil
		}),
	)

	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitPerSecond, conf.RateLimitBurst),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
	)

	httpStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger: L,
		Port:   conf.HTTPPort,
		Routes: func(r chi.Router) {
			r.Get("/auth", authHandler)
			contentHandler.Mount(r)
		},
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = httpStop(context.Background()) }()

	opsStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd kills the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// block until signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so upstream checks stop routing to us, then give
	// in-flight requests a moment to finish
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining")
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(5 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := httpStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	if err := schemas.Close(); err != nil {
		L.Error(context.Background(), err, "closing site databases")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when we were started with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
