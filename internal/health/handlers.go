package health

import "net/http"

// HealthzHandler serves liveness: 200 when the probe passes, 503 otherwise.
func HealthzHandler(p Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveProbe(w, r, p)
	}
}

// ReadyzHandler serves readiness with the same contract.
func ReadyzHandler(p Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveProbe(w, r, p)
	}
}

func serveProbe(w http.ResponseWriter, r *http.Request, p Probe) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if p == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	if err := p.Check(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
