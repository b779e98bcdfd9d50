// Package site holds one site's mutable state and the single-writer
// execution context that owns it after activation.
package site

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kestrelnet/zeronode/internal/address"
	"github.com/kestrelnet/zeronode/internal/content"
	"github.com/kestrelnet/zeronode/internal/log"
	"github.com/kestrelnet/zeronode/internal/pathutil"
	"github.com/kestrelnet/zeronode/internal/xerrors"
)

// StorageFilename persists a site's storage metadata inside its root.
const StorageFilename = "storage.json"

// Keys are the secrets issued for a site during bootstrap. The wrapper
// key is the primary secret used to obtain a nonce; the ajax key is the
// lower-trust secret for restricted in-page calls.
type Keys struct {
	WrapperKey string `json:"wrapper_key"`
	AjaxKey    string `json:"ajax_key"`
}

// Settings are the persisted per-site flags and counters.
type Settings struct {
	Added    int64 `json:"added,omitempty"`
	Modified int64 `json:"modified,omitempty"`
	Size     int64 `json:"size,omitempty"`
	Serving  bool  `json:"serving"`
	Own      bool  `json:"own,omitempty"`
	Peers    int   `json:"peers,omitempty"`
}

// Storage is the storage metadata attached to a site.
type Storage struct {
	Keys     Keys     `json:"keys"`
	Settings Settings `json:"settings"`
}

// Options configures a Site's external capabilities.
type Options struct {
	Fetcher content.Fetcher
	Signer  content.Signer
	Logger  log.Logger
}

// Site is one independently signed, independently stored unit of
// content. Before activation it is owned by the registry's map; after
// activation, logical ownership transfers to the actor started by Start
// and all mutation goes through the Handle.
type Site struct {
	addr     address.Address
	root     string
	storage  Storage
	manifest *content.Manifest

	fetcher content.Fetcher
	signer  content.Signer
	log     log.Logger
}

func New(addr address.Address, root string, opts Options) *Site {
	if opts.Fetcher == nil {
		opts.Fetcher = content.NopFetcher()
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Site{
		addr:    addr,
		root:    root,
		fetcher: opts.Fetcher,
		signer:  opts.Signer,
		log:     opts.Logger.With("site", addr.Short()),
	}
}

func (s *Site) Addr() address.Address { return s.addr }
func (s *Site) Root() string          { return s.root }

// ContentPath is the site's root manifest location.
func (s *Site) ContentPath() string {
	return filepath.Join(s.root, content.ManifestFilename)
}

// HasContent reports whether the root manifest is on disk.
func (s *Site) HasContent() bool { return content.Exists(s.ContentPath()) }

// Storage returns a copy of the attached storage metadata.
func (s *Site) Storage() Storage { return s.storage }

// ApplyStorage replaces the attached storage metadata.
func (s *Site) ApplyStorage(st Storage) { s.storage = st }

// Manifest returns the loaded root manifest, or nil before LoadContent.
func (s *Site) Manifest() *content.Manifest { return s.manifest }

// LoadContent loads and caches the root manifest.
func (s *Site) LoadContent(ctx context.Context) error {
	m, err := s.LoadContentFromPath(ctx, "")
	if err != nil {
		return err
	}
	s.manifest = m
	return nil
}

// Refresh re-establishes the site's content: if the root manifest has
// gone missing from disk it consults the fetcher, then reloads the
// manifest. Reports content.ErrUnavailable when the fetcher cannot
// deliver.
func (s *Site) Refresh(ctx context.Context) error {
	if !s.HasContent() {
		if _, err := s.InitDownload(ctx); err != nil {
			return err
		}
	}
	if !s.HasContent() {
		return content.ErrUnavailable
	}
	return s.LoadContent(ctx)
}

// LoadStorage attaches storage metadata from the JSON file at path.
func (s *Site) LoadStorage(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, xerrors.Wrapf(err, "reading storage %s", path)
	}
	var st Storage
	if err := json.Unmarshal(data, &st); err != nil {
		return false, xerrors.Wrapf(err, "parsing storage %s", path)
	}
	s.storage = st
	return true, nil
}

// SaveStorage persists the storage metadata into the site root.
func (s *Site) SaveStorage(ctx context.Context) (bool, error) {
	s.storage.Settings.Modified = time.Now().Unix()
	data, err := json.MarshalIndent(s.storage, "", "  ")
	if err != nil {
		return false, xerrors.Wrap(err, "encoding storage")
	}
	if err := os.WriteFile(filepath.Join(s.root, StorageFilename), data, 0o644); err != nil {
		return false, xerrors.Wrap(err, "writing storage")
	}
	return true, nil
}

// InitDownload asks the injected fetcher for the site's content. It
// reports content.ErrUnavailable when the fetcher cannot deliver; it
// never terminates the process.
func (s *Site) InitDownload(ctx context.Context) (bool, error) {
	res, err := s.fetcher.Fetch(ctx, s.addr.String())
	if err != nil {
		return false, xerrors.Wrapf(err, "fetching %s", s.addr.Short())
	}
	if !res.Available {
		return false, content.ErrUnavailable
	}
	return true, nil
}

// LoadContentFromPath loads and parses the manifest at innerPath
// relative to the site root ("" means the root manifest).
func (s *Site) LoadContentFromPath(ctx context.Context, innerPath string) (*content.Manifest, error) {
	if innerPath == "" {
		innerPath = content.ManifestFilename
	}
	if !pathutil.SafeInnerPath(innerPath) {
		return nil, xerrors.Newf("unsafe inner path %q", innerPath)
	}
	m, err := content.LoadManifest(filepath.Join(s.root, innerPath))
	if err != nil {
		return nil, err
	}
	m.InnerPath = innerPath
	return m, nil
}

// AddFileToContent hashes the file at path (relative to the root) and
// registers it in the root manifest's file table.
func (s *Site) AddFileToContent(ctx context.Context, path string) error {
	if s.manifest == nil {
		return content.ErrUnavailable
	}
	if !pathutil.SafeInnerPath(path) || path == "" {
		return xerrors.Newf("unsafe inner path %q", path)
	}
	f, err := os.Open(filepath.Join(s.root, path))
	if err != nil {
		return xerrors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	h := sha512.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return xerrors.Wrapf(err, "hashing %s", path)
	}
	s.manifest.Files[path] = content.FileRef{
		SHA512: hex.EncodeToString(h.Sum(nil)),
		Size:   size,
	}
	return nil
}

// SignContent signs the manifest at innerPath with privateKey using the
// injected signer.
func (s *Site) SignContent(ctx context.Context, innerPath string, privateKey string) error {
	if s.signer == nil {
		return content.ErrNoSigner
	}
	m, err := s.manifestAt(ctx, innerPath)
	if err != nil {
		return err
	}
	m.Modified = float64(time.Now().Unix())

	// Sign the document with the signs table cleared, matching the
	// manifest's sign-then-attach layout.
	signs := m.Signs
	m.Signs = nil
	payload, err := json.Marshal(m)
	m.Signs = signs
	if err != nil {
		return xerrors.Wrap(err, "encoding manifest for signing")
	}

	sig, err := s.signer.Sign(payload, privateKey)
	if err != nil {
		return xerrors.Wrap(err, "signing manifest")
	}
	if m.Signs == nil {
		m.Signs = map[string]string{}
	}
	m.Signs[s.addr.String()] = sig
	return nil
}

// SaveContent writes the manifest at innerPath back to disk.
func (s *Site) SaveContent(ctx context.Context, innerPath string) error {
	m, err := s.manifestAt(ctx, innerPath)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", " ")
	if err != nil {
		return xerrors.Wrap(err, "encoding manifest")
	}
	name := m.InnerPath
	if name == "" {
		name = content.ManifestFilename
	}
	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o644); err != nil {
		return xerrors.Wrap(err, "writing manifest")
	}
	return nil
}

// manifestAt resolves "" or the root manifest path to the cached root
// manifest; anything else is loaded fresh.
func (s *Site) manifestAt(ctx context.Context, innerPath string) (*content.Manifest, error) {
	if innerPath == "" || innerPath == content.ManifestFilename {
		if s.manifest == nil {
			if err := s.LoadContent(ctx); err != nil {
				return nil, err
			}
		}
		return s.manifest, nil
	}
	return s.LoadContentFromPath(ctx, innerPath)
}
