package content

import "context"

// Fetched reports the outcome of a peer download request.
type Fetched struct {
	// Available is true when the site's manifest is on disk after the
	// fetch attempt.
	Available bool
}

// Fetcher is the injectable peer-download capability. The wire protocol
// is implemented elsewhere; the registry only depends on this contract.
type Fetcher interface {
	Fetch(ctx context.Context, address string) (Fetched, error)
}

// FetcherFunc adapts a function into a Fetcher.
type FetcherFunc func(ctx context.Context, address string) (Fetched, error)

func (f FetcherFunc) Fetch(ctx context.Context, address string) (Fetched, error) {
	return f(ctx, address)
}

// NopFetcher deterministically reports unavailability. It stands in
// until peer download support lands and must never abort the process.
func NopFetcher() Fetcher {
	return FetcherFunc(func(ctx context.Context, address string) (Fetched, error) {
		return Fetched{Available: false}, nil
	})
}
