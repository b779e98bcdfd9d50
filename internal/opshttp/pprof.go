package opshttp

import (
	"net/http"
	"net/http/pprof"
)

// RegisterPprof mounts the pprof handlers on mux. The WriteTimeout on
// the admin server bounds long-running profiles; keep it in mind when
// requesting ?seconds= beyond 10.
func RegisterPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
