package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// ClientIPOptions configures client IP extraction behavior.
type ClientIPOptions struct {
	// TrustedHops is the number of trusted reverse proxies between the
	// client and this node. 0 = directly exposed (X-Forwarded-For is
	// ignored), 1 = one reverse proxy (rightmost XFF entry), etc. Nodes
	// are usually exposed directly, so the default is 0.
	TrustedHops int
}

// ClientIP extracts the client IP address from the request and stores
// it in the context, with X-Forwarded-For ignored.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions returns middleware that extracts the client IP
// using the given options.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractClientAddr(r, opts.TrustedHops)
			ctx := WithClientIP(r.Context(), ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractClientAddr resolves the client address. X-Forwarded-For is
// only consulted when the request arrives from a private address AND
// trusted hops are configured; anything else strips the header so no
// downstream middleware accidentally trusts it.
func extractClientAddr(r *http.Request, trustedHops int) string {
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}

	clientAddr, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	ip := net.ParseIP(clientAddr)
	if ip == nil {
		return "0.0.0.0"
	}

	if !ip.IsPrivate() || trustedHops <= 0 {
		r.Header.Del("X-Forwarded-For")
		r.Header.Del("X-Forwarded-Proto")
		return clientAddr
	}

	// Select the Nth-from-end XFF entry. Fewer entries than expected
	// proxies means misconfiguration or manipulation: fail closed.
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		idx := len(parts) - trustedHops
		if idx < 0 {
			r.Header.Del("X-Forwarded-For")
			r.Header.Del("X-Forwarded-Proto")
			return clientAddr
		}
		if candidate := strings.TrimSpace(parts[idx]); net.ParseIP(candidate) != nil {
			clientAddr = candidate
		}
	}

	return clientAddr
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
