// Package authhttp is the node's authentication gateway: it trades the
// process-wide access key for a per-request wrapper nonce bound to a
// site through the registry.
package authhttp

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kestrelnet/zeronode/internal/address"
	"github.com/kestrelnet/zeronode/internal/log"
)

// NonceBinder is the registry surface the gateway needs.
type NonceBinder interface {
	BindNonce(ctx context.Context, addr address.Address, nonce string) error
}

// Options configures the auth handler.
type Options struct {
	// AccessKey is the process-wide secret. Comparison is constant
	// time.
	AccessKey string
	Registry  NonceBinder
	// Audit receives every issued nonce; nil disables auditing.
	Audit  *Audit
	Logger log.Logger
	// OnOutcome fires once per request with the coarse outcome:
	// malformed, missing_key, invalid_key, bound, or bind_error.
	OnOutcome func(outcome string)
}

const restrictedBody = "This API is restricted, use the access_key parameter to authenticate and obtain a wrapper key"

// Handler serves GET /auth?address=<addr>&access_key=<secret>.
//
// Failed authentication is a negotiated reply, not an error: the
// instructional and rejection bodies go out with status 200. Only a
// malformed address or a site that cannot be activated is a 400.
func Handler(opts Options) http.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	outcome := func(s string) {
		if opts.OnOutcome != nil {
			opts.OnOutcome(s)
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()
		rawAddr := q.Get("address")
		key := q.Get("access_key")

		addr, err := address.Parse(rawAddr)
		if err != nil {
			outcome("malformed")
			respond(w, http.StatusBadRequest, rawAddr+" is a malformed site address")
			return
		}

		if key == "" {
			outcome("missing_key")
			respond(w, http.StatusOK, restrictedBody)
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(opts.AccessKey)) != 1 {
			outcome("invalid_key")
			logger.Warn(ctx, "rejected invalid access key", "site", addr.Short())
			respond(w, http.StatusOK, "Provided access_key is not valid")
			return
		}

		nonce := newNonce()
		if opts.Audit != nil {
			opts.Audit.Record(nonce)
		}
		if err := opts.Registry.BindNonce(ctx, addr, nonce); err != nil {
			outcome("bind_error")
			logger.Warn(ctx, "wrapper key bind failed",
				"site", addr.Short(), "error", err.Error())
			respond(w, http.StatusBadRequest, "site is not available")
			return
		}

		outcome("bound")
		logger.Info(ctx, "issued wrapper key", "site", addr.Short())
		respond(w, http.StatusOK, "wrapper_key="+nonce)
	}
}

// newNonce returns a fresh uuid4 without dashes, the node's wrapper
// key format.
func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
