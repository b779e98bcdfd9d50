package site

import (
	"context"
	"errors"

	"github.com/kestrelnet/zeronode/internal/address"
	"github.com/kestrelnet/zeronode/internal/content"
)

// ErrStopped is returned for operations submitted after the site's
// actor has exited.
var ErrStopped = errors.New("site actor stopped")

type op struct {
	fn   func(*Site)
	done chan struct{}
}

// Handle references one activated site's actor. Holding a Handle never
// grants direct access to the Site: every operation is delivered to the
// single goroutine that owns it, so no two mutations of the same site
// run concurrently. Operations on different sites are independent.
type Handle struct {
	addr address.Address
	ops  chan op
	done chan struct{}
}

// Start spawns the actor goroutine owning s and returns its Handle.
// The actor runs until ctx is cancelled.
func Start(ctx context.Context, s *Site) *Handle {
	h := &Handle{
		addr: s.Addr(),
		ops:  make(chan op, 16),
		done: make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		for {
			select {
			case <-ctx.Done():
				return
			case o := <-h.ops:
				o.fn(s)
				close(o.done)
			}
		}
	}()
	return h
}

func (h *Handle) Addr() address.Address { return h.addr }

// Done is closed when the actor exits.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) do(ctx context.Context, fn func(*Site)) error {
	o := op{fn: fn, done: make(chan struct{})}
	select {
	case h.ops <- o:
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-o.done:
		return nil
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadContent (re)loads the root manifest inside the actor.
func (h *Handle) LoadContent(ctx context.Context) error {
	var err error
	if derr := h.do(ctx, func(s *Site) { err = s.LoadContent(ctx) }); derr != nil {
		return derr
	}
	return err
}

// Refresh re-establishes missing content and reloads the manifest as a
// single actor operation, so nothing else sees the site half-refreshed.
func (h *Handle) Refresh(ctx context.Context) error {
	var err error
	if derr := h.do(ctx, func(s *Site) { err = s.Refresh(ctx) }); derr != nil {
		return derr
	}
	return err
}

// Manifest returns a copy of the loaded root manifest, or nil.
func (h *Handle) Manifest(ctx context.Context) (*content.Manifest, error) {
	var m *content.Manifest
	if derr := h.do(ctx, func(s *Site) {
		if s.manifest != nil {
			cp := *s.manifest
			m = &cp
		}
	}); derr != nil {
		return nil, derr
	}
	return m, nil
}

// Storage returns the site's storage metadata.
func (h *Handle) Storage(ctx context.Context) (Storage, error) {
	var st Storage
	if derr := h.do(ctx, func(s *Site) { st = s.Storage() }); derr != nil {
		return Storage{}, derr
	}
	return st, nil
}

// Root returns the site's filesystem root.
func (h *Handle) Root(ctx context.Context) (string, error) {
	var root string
	if derr := h.do(ctx, func(s *Site) { root = s.Root() }); derr != nil {
		return "", derr
	}
	return root, nil
}

// SaveStorage persists the site's storage metadata.
func (h *Handle) SaveStorage(ctx context.Context) error {
	var err error
	if derr := h.do(ctx, func(s *Site) { _, err = s.SaveStorage(ctx) }); derr != nil {
		return derr
	}
	return err
}

// InitDownload requests a peer fetch of the site's content.
func (h *Handle) InitDownload(ctx context.Context) error {
	var err error
	if derr := h.do(ctx, func(s *Site) { _, err = s.InitDownload(ctx) }); derr != nil {
		return derr
	}
	return err
}

// AddFile registers a file in the root manifest.
func (h *Handle) AddFile(ctx context.Context, path string) error {
	var err error
	if derr := h.do(ctx, func(s *Site) { err = s.AddFileToContent(ctx, path) }); derr != nil {
		return derr
	}
	return err
}

// Sign signs the manifest at innerPath with privateKey.
func (h *Handle) Sign(ctx context.Context, innerPath, privateKey string) error {
	var err error
	if derr := h.do(ctx, func(s *Site) { err = s.SignContent(ctx, innerPath, privateKey) }); derr != nil {
		return derr
	}
	return err
}

// SaveContent writes the manifest at innerPath back to disk.
func (h *Handle) SaveContent(ctx context.Context, innerPath string) error {
	var err error
	if derr := h.do(ctx, func(s *Site) { err = s.SaveContent(ctx, innerPath) }); derr != nil {
		return derr
	}
	return err
}
