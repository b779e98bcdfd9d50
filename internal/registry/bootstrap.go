package registry

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kestrelnet/zeronode/internal/address"
	"github.com/kestrelnet/zeronode/internal/site"
)

// Bootstrap seeds the registry from the storage snapshot given at
// construction, then activates every registered site whose content is
// already on disk. Individual failures are logged and skipped; a bad
// or missing site never stops the node from coming up.
func (r *Registry) Bootstrap(ctx context.Context) error {
	registered, err := r.ExtendMany(ctx, r.opts.Storage)
	if err != nil {
		return err
	}

	for _, s := range registered {
		if !s.HasContent() {
			// Nothing local to serve yet; the site activates on first
			// demand through the fetcher.
			continue
		}
		if _, err := r.GetOrActivate(ctx, s.Addr()); err != nil {
			r.opts.Hooks.bootstrapSite("activation_error")
			r.log.Warn(ctx, "bootstrap activation failed",
				"site", s.Addr().Short(), "error", err.Error())
			continue
		}
		r.opts.Hooks.bootstrapSite("activated")
	}
	return nil
}

// ExtendMany registers every snapshot entry whose site root exists on
// disk, binding its persisted wrapper and ajax keys. Entries with a
// malformed address or a missing root are skipped with a warning. It
// returns the sites it registered; order is unspecified.
func (r *Registry) ExtendMany(ctx context.Context, entries map[string]site.Storage) ([]*site.Site, error) {
	var out []*site.Site
	for key, st := range entries {
		addr, err := address.Parse(key)
		if err != nil {
			r.opts.Hooks.bootstrapSite("malformed")
			r.log.Warn(ctx, "skipping malformed site address", "address", key)
			continue
		}
		root := filepath.Join(r.opts.DataDir, key)
		if _, err := os.Stat(root); err != nil {
			r.opts.Hooks.bootstrapSite("missing_root")
			r.log.Warn(ctx, "skipping site with missing root",
				"site", addr.Short(), "root", root)
			continue
		}
		s := site.New(addr, root, site.Options{
			Fetcher: r.opts.Fetcher,
			Signer:  r.opts.Signer,
			Logger:  r.opts.Logger,
		})
		s.ApplyStorage(st)
		if err := r.AddSite(ctx, s); err != nil {
			return nil, err
		}
		r.opts.Hooks.bootstrapSite("registered")
		out = append(out, s)
	}
	return out, nil
}
