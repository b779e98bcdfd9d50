// Package registry owns the node's site table: which addresses are
// registered, which are active (backed by a running site actor), and
// the nonce and ajax-key lookup maps the auth gateway depends on.
//
// All state is owned by a single loop goroutine. Public methods submit
// closures to the loop; activation I/O runs on per-address worker
// goroutines so a slow site never blocks lookups for other sites.
package registry

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/kestrelnet/zeronode/internal/address"
	"github.com/kestrelnet/zeronode/internal/content"
	"github.com/kestrelnet/zeronode/internal/log"
	"github.com/kestrelnet/zeronode/internal/schema"
	"github.com/kestrelnet/zeronode/internal/site"
)

var (
	// ErrUnknownNonce is returned when a nonce resolves to no active site.
	ErrUnknownNonce = errors.New("unknown nonce")
	// ErrStopped is returned for calls made after the registry loop exited.
	ErrStopped = errors.New("registry stopped")
)

// Options configures a Registry.
type Options struct {
	// DataDir holds one subdirectory per site address.
	DataDir string
	// Storage is the immutable bootstrap snapshot: persisted per-site
	// metadata keyed by address string.
	Storage map[string]site.Storage
	// Fetcher is consulted when a site's content is not on disk.
	Fetcher content.Fetcher
	// Signer is handed to activated sites; may be nil.
	Signer content.Signer
	// Schemas receives per-site schema registrations; may be nil.
	Schemas *schema.Store
	// ActivationTimeout bounds the work of one activation. Zero means
	// no bound.
	ActivationTimeout time.Duration
	Logger            log.Logger
	Hooks             Hooks
}

type activationResult struct {
	h   *site.Handle
	err error
}

// Registry is the site table. Construct with Start.
type Registry struct {
	opts Options
	log  log.Logger

	baseCtx context.Context
	reqs    chan func()
	done    chan struct{}

	// Loop-owned. Never touched outside the loop goroutine.
	sites    map[string]*site.Site
	handles  map[string]*site.Handle
	nonces   map[string]address.Address
	ajaxKeys map[string]address.Address
	pending  map[string][]chan activationResult

	changed monotonic
}

// Start creates the registry and spawns its loop. The loop, every site
// actor, and every in-flight activation stop when ctx is cancelled.
func Start(ctx context.Context, opts Options) *Registry {
	if opts.Fetcher == nil {
		opts.Fetcher = content.NopFetcher()
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	r := &Registry{
		opts:     opts,
		log:      opts.Logger.With("component", "registry"),
		baseCtx:  ctx,
		reqs:     make(chan func(), 32),
		done:     make(chan struct{}),
		sites:    map[string]*site.Site{},
		handles:  map[string]*site.Handle{},
		nonces:   map[string]address.Address{},
		ajaxKeys: map[string]address.Address{},
		pending:  map[string][]chan activationResult{},
	}
	go r.loop(ctx)
	return r
}

func (r *Registry) loop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-r.reqs:
			fn()
		}
	}
}

// Done is closed when the loop exits.
func (r *Registry) Done() <-chan struct{} { return r.done }

// SitesChanged reports the last time the site table changed, as unix
// seconds. It never decreases.
func (r *Registry) SitesChanged() int64 { return r.changed.Load() }

func (r *Registry) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case r.reqs <- wrapped:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit delivers a closure to the loop without waiting for it. Used
// by activation workers, which must never deadlock against the loop.
func (r *Registry) submit(fn func()) {
	select {
	case r.reqs <- fn:
	case <-r.done:
	}
}

// GetOrActivate returns the handle for an active site, activating it
// first if needed. Concurrent callers for the same address share one
// activation and receive the same handle. A site whose content is
// neither on disk nor deliverable by the fetcher fails with
// content.ErrUnavailable; the caller decides whether that is fatal.
func (r *Registry) GetOrActivate(ctx context.Context, addr address.Address) (*site.Handle, error) {
	var (
		h    *site.Handle
		wait chan activationResult
	)
	err := r.call(ctx, func() {
		key := addr.String()
		if cur, ok := r.handles[key]; ok {
			// Content can vanish out from under an active site; a
			// single stat keeps the fast path honest.
			if s := r.sites[key]; s != nil && s.HasContent() {
				h = cur
				return
			}
		}
		ch := make(chan activationResult, 1)
		r.pending[key] = append(r.pending[key], ch)
		wait = ch
		if len(r.pending[key]) == 1 {
			go r.activate(key, addr, r.sites[key], r.handles[key])
		}
	})
	if err != nil {
		return nil, err
	}
	if h != nil {
		return h, nil
	}
	select {
	case res := <-wait:
		return res.h, res.err
	case <-r.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// activate runs on a worker goroutine: it does every piece of
// activation I/O off the loop, then submits the outcome back. When the
// site already has a running actor, the actor owns its state, so all
// refresh I/O is routed through the handle instead of touching the
// Site directly.
func (r *Registry) activate(key string, addr address.Address, existing *site.Site, running *site.Handle) {
	ctx := r.baseCtx
	if r.opts.ActivationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.ActivationTimeout)
		defer cancel()
	}

	if running != nil {
		err := running.Refresh(ctx)
		if err == nil {
			if root, rerr := running.Root(ctx); rerr == nil {
				r.registerSchema(ctx, addr, root)
			}
		}
		r.complete(key, addr, nil, err)
		return
	}

	s := existing
	if s == nil {
		s = site.New(addr, filepath.Join(r.opts.DataDir, key), site.Options{
			Fetcher: r.opts.Fetcher,
			Signer:  r.opts.Signer,
			Logger:  r.opts.Logger,
		})
		if st, ok := r.opts.Storage[key]; ok {
			s.ApplyStorage(st)
		}
	}
	err := r.prepare(ctx, s)
	r.complete(key, addr, s, err)
}

func (r *Registry) prepare(ctx context.Context, s *site.Site) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	r.registerSchema(ctx, s.Addr(), s.Root())
	return nil
}

// registerSchema loads dbschema.json under root and opens the site's
// database. Schema failures are logged; the site stays usable without
// a database.
func (r *Registry) registerSchema(ctx context.Context, addr address.Address, root string) {
	if r.opts.Schemas == nil {
		return
	}
	sc, err := schema.Load(root)
	switch {
	case err != nil:
		r.log.Warn(ctx, "site schema unusable",
			"site", addr.Short(), "error", err.Error())
	case sc != nil:
		r.opts.Schemas.Register(addr, sc)
		if err := r.opts.Schemas.Connect(addr, root); err != nil {
			r.log.Warn(ctx, "site database unavailable",
				"site", addr.Short(), "error", err.Error())
		}
	}
}

// complete delivers the activation outcome to the loop. s is nil when
// the work was a refresh of an already-running actor.
func (r *Registry) complete(key string, addr address.Address, s *site.Site, actErr error) {
	r.submit(func() {
		waiters := r.pending[key]
		delete(r.pending, key)
		if actErr != nil {
			r.opts.Hooks.activationError(activationReason(actErr))
			r.log.Warn(r.baseCtx, "site activation failed",
				"site", addr.Short(), "error", actErr.Error())
			for _, ch := range waiters {
				ch <- activationResult{err: actErr}
			}
			return
		}
		h, running := r.handles[key]
		if !running {
			if s == nil {
				// The site was removed while its actor refreshed.
				for _, ch := range waiters {
					ch <- activationResult{err: content.ErrUnavailable}
				}
				return
			}
			// Nonces bind before the actor starts so the first
			// resolve after activation can never miss.
			r.sites[key] = s
			r.bindKeys(s)
			h = site.Start(r.baseCtx, s)
			r.handles[key] = h
			r.changed.Bump()
			r.opts.Hooks.siteActivated(len(r.handles))
		}
		for _, ch := range waiters {
			ch <- activationResult{h: h}
		}
	})
}

// bindKeys maps a site's persisted secrets into the lookup tables.
// Loop-owned state; call only from the loop.
func (r *Registry) bindKeys(s *site.Site) {
	keys := s.Storage().Keys
	if keys.WrapperKey != "" {
		r.nonces[keys.WrapperKey] = s.Addr()
	}
	if keys.AjaxKey != "" {
		r.ajaxKeys[keys.AjaxKey] = s.Addr()
	}
}

// ResolveByNonce maps a nonce to its active site's handle. The nonce
// is not consumed: the same table holds long-lived wrapper keys that
// must stay resolvable across requests.
func (r *Registry) ResolveByNonce(ctx context.Context, nonce string) (*site.Handle, error) {
	var h *site.Handle
	err := r.call(ctx, func() {
		addr, ok := r.nonces[nonce]
		if !ok {
			return
		}
		h = r.handles[addr.String()]
	})
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrUnknownNonce
	}
	return h, nil
}

// ResolveByAjaxKey maps an ajax key to its active site's handle.
func (r *Registry) ResolveByAjaxKey(ctx context.Context, key string) (*site.Handle, error) {
	var h *site.Handle
	err := r.call(ctx, func() {
		addr, ok := r.ajaxKeys[key]
		if !ok {
			return
		}
		h = r.handles[addr.String()]
	})
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrUnknownNonce
	}
	return h, nil
}

// BindNonce activates the site if needed, then maps nonce to it. This
// is the auth gateway's single write path into the registry.
func (r *Registry) BindNonce(ctx context.Context, addr address.Address, nonce string) error {
	if _, err := r.GetOrActivate(ctx, addr); err != nil {
		return err
	}
	err := r.call(ctx, func() {
		r.nonces[nonce] = addr
	})
	if err != nil {
		return err
	}
	r.opts.Hooks.nonceBound()
	return nil
}

// AddSite registers a site without activating it.
func (r *Registry) AddSite(ctx context.Context, s *site.Site) error {
	return r.call(ctx, func() {
		r.sites[s.Addr().String()] = s
		r.bindKeys(s)
		r.changed.Bump()
	})
}

// RemoveSite drops a site from the table. A running actor is left
// untouched: handles already held by callers keep working until the
// node shuts down.
func (r *Registry) RemoveSite(ctx context.Context, addr address.Address) error {
	return r.call(ctx, func() {
		key := addr.String()
		delete(r.sites, key)
		delete(r.handles, key)
		r.changed.Bump()
	})
}

// Registered lists every registered address. Order is unspecified.
func (r *Registry) Registered(ctx context.Context) ([]address.Address, error) {
	var out []address.Address
	err := r.call(ctx, func() {
		for _, s := range r.sites {
			out = append(out, s.Addr())
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func activationReason(err error) string {
	switch {
	case errors.Is(err, content.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
