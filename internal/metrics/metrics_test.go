package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// scrape renders the registry through its own handler.
func scrape(t *testing.T, m *ServerMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := New()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth", nil))

	body := scrape(t, m)
	if !strings.Contains(body, `http_requests_total{method="GET",route="/auth",status="418"} 1`) {
		t.Fatalf("request counter missing:\n%s", body)
	}
}

func TestMiddlewareCountsServerErrors(t *testing.T) {
	m := New()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	if !strings.Contains(scrape(t, m), `http_errors_total{method="GET",route="/x"} 1`) {
		t.Fatal("5xx not counted")
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.SiteActivated(3)
	m.IncActivationError("unavailable")
	m.IncNonceBind()
	m.IncAuthRequest("bound")
	m.IncBootstrapSite("registered")
	m.SetSchemaConnectionsOpen(2)

	body := scrape(t, m)
	for _, want := range []string{
		`sites_active 3`,
		`site_activations_total 1`,
		`site_activation_errors_total{reason="unavailable"} 1`,
		`nonce_binds_total 1`,
		`auth_requests_total{outcome="bound"} 1`,
		`bootstrap_sites_total{result="registered"} 1`,
		`schema_connections_open 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q", want)
		}
	}
}
