package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/kestrelnet/zeronode/internal/log"
)

// App is the full process configuration. Ambient settings mirror the
// flag names; domain settings cover the data root, the gateway secret,
// and activation/nonce policy.
type App struct {
	LogJSON  bool
	LogLevel string

	HTTPPort    int
	AdminPort   int
	EnablePprof bool

	DataDir   string
	AccessKey string

	NonceTTL          time.Duration
	ActivationTimeout time.Duration

	RateLimitPerSecond float64
	RateLimitBurst     int

	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
}

// Register binds all config fields to the given FlagSet with defaults inline.
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 43110, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.StringVar(&c.DataDir, "data-dir", "data", "root directory holding one subdirectory per site address")
	fs.StringVar(&c.AccessKey, "access-key", "", "process-wide shared secret for the /auth endpoint")
	fs.DurationVar(&c.NonceTTL, "nonce-ttl", 15*time.Minute, "eviction TTL for the nonce audit set")
	fs.DurationVar(&c.ActivationTimeout, "activation-timeout", 30*time.Second, "per-site bound on activation work (content + schema load)")
	fs.Float64Var(&c.RateLimitPerSecond, "rate-limit-per-second", 10, "per-ip refill rate for the public listener")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 30, "per-ip burst ceiling for the public listener")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and
// formats. Returns an error describing all invalid fields, or nil.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("DATA_DIR is required"))
	}
	if c.AccessKey == "" {
		errs = append(errs, fmt.Errorf("ACCESS_KEY is required"))
	}

	if c.NonceTTL <= 0 {
		errs = append(errs, fmt.Errorf("NONCE_TTL must be positive (got %s)", c.NonceTTL))
	}
	if c.ActivationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ACTIVATION_TIMEOUT must be positive (got %s)", c.ActivationTimeout))
	}

	if c.RateLimitPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_SECOND must be positive (got %g)", c.RateLimitPerSecond))
	}
	if c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 1 (got %d)", c.RateLimitBurst))
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}
	if c.EnablePyroscope && c.PyroServer == "" {
		errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
