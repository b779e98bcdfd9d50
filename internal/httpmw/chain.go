package httpmw

import (
	"net/http"
)

// Chain wraps h in mws, outermost first: Chain(h, a, b) serves a(b(h)).
// Nil entries are skipped, so callers can pass optional middlewares
// without branching.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		h = mws[i](h)
	}
	return h
}
