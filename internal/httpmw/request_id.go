package httpmw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

type requestIDKey struct{}

// WithRequestID returns ctx carrying the request ID. An empty id is a
// no-op.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID carried by ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}

// RequestID propagates the incoming request ID header, minting a fresh
// one when the client sent none. The ID lands in the request context
// and is echoed on the response so clients and log lines correlate.
func RequestID(headerName string) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = "X-Request-Id"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerName)
			if id == "" {
				id = newRequestID()
			}

			w.Header().Set(headerName, id)

			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}

func newRequestID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is a broken host; an empty ID degrades
		// to uncorrelated log lines, nothing worse.
		return ""
	}
	return hex.EncodeToString(b[:])
}
