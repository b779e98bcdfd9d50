package content

import "errors"

var (
	// ErrUnavailable means the site root exists but its manifest has not
	// been downloaded yet. It is an expected state, not a failure of the
	// node: callers decide whether to trigger a fetch.
	ErrUnavailable = errors.New("site content not available")

	// ErrNoSigner is returned by signing operations when no signer
	// capability was injected.
	ErrNoSigner = errors.New("no content signer configured")
)
