package cfg

import (
	"flag"
	"strings"
	"testing"
	"time"
)

func validApp() App {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	_ = fs.Parse([]string{"-access-key", "secret123"})
	return c
}

func TestDefaultsAreValid(t *testing.T) {
	c := validApp()
	if err := Validate(c); err != nil {
		t.Fatalf("defaults + access key should validate: %v", err)
	}
	if c.HTTPPort != 43110 {
		t.Fatalf("HTTPPort default = %d", c.HTTPPort)
	}
	if c.NonceTTL != 15*time.Minute {
		t.Fatalf("NonceTTL default = %s", c.NonceTTL)
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*App)
		want string
	}{
		{"missing access key", func(c *App) { c.AccessKey = "" }, "ACCESS_KEY"},
		{"missing data dir", func(c *App) { c.DataDir = "" }, "DATA_DIR"},
		{"bad port", func(c *App) { c.HTTPPort = 0 }, "HTTP_PORT"},
		{"port clash", func(c *App) { c.AdminPort = c.HTTPPort }, "must differ"},
		{"bad level", func(c *App) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"bad ttl", func(c *App) { c.NonceTTL = 0 }, "NONCE_TTL"},
		{"bad timeout", func(c *App) { c.ActivationTimeout = -time.Second }, "ACTIVATION_TIMEOUT"},
		{"tracing without endpoint", func(c *App) { c.EnableTracing = true }, "OTLP_ENDPOINT"},
		{"bad sample", func(c *App) { c.TraceSample = 1.5 }, "TRACE_SAMPLE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validApp()
			tc.mut(&c)
			err := Validate(c)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestFillFromEnv(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	_ = fs.Parse([]string{"-http-port", "5000"})

	t.Setenv("ZN_HTTP_PORT", "6000")
	t.Setenv("ZN_ACCESS_KEY", "from-env")
	t.Setenv("ZN_ADMIN_PORT", "not-a-number")

	FillFromEnv(fs, "ZN_", nil)

	if c.HTTPPort != 5000 {
		t.Fatalf("cli flag should win over env, got %d", c.HTTPPort)
	}
	if c.AccessKey != "from-env" {
		t.Fatalf("env should fill unset flag, got %q", c.AccessKey)
	}
	if c.AdminPort != 9000 {
		t.Fatalf("invalid env should keep default, got %d", c.AdminPort)
	}
}
