package content

import "context"

// SiteIO is the capability set a site must support. The registry only
// calls it through the site's single-writer execution context; the
// contract itself makes no concurrency guarantee.
type SiteIO interface {
	// LoadStorage attaches persisted storage metadata from path.
	LoadStorage(ctx context.Context, path string) (bool, error)
	// SaveStorage persists the current storage metadata.
	SaveStorage(ctx context.Context) (bool, error)
	// InitDownload requests a network fetch of the site's content. A
	// stubbed implementation reports unavailability via
	// ErrUnavailable; it never terminates the process.
	InitDownload(ctx context.Context) (bool, error)
	// LoadContentFromPath loads and parses the manifest at innerPath
	// relative to the site root ("" means the root manifest).
	LoadContentFromPath(ctx context.Context, innerPath string) (*Manifest, error)
	// AddFileToContent registers path in the root manifest's file table.
	AddFileToContent(ctx context.Context, path string) error
	// SignContent signs the manifest at innerPath with privateKey.
	SignContent(ctx context.Context, innerPath string, privateKey string) error
	// SaveContent writes the manifest at innerPath back to disk.
	SaveContent(ctx context.Context, innerPath string) error
}

// Signer abstracts the manifest signing scheme. The cryptographic
// internals live outside this node.
type Signer interface {
	Sign(manifest []byte, privateKey string) (string, error)
}
