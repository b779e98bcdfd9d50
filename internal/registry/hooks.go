package registry

import (
	"sync/atomic"
	"time"
)

// Hooks are optional instrumentation callbacks. Nil fields are
// skipped; every callback must be cheap and non-blocking since some
// fire on the registry loop.
type Hooks struct {
	// SiteActivated fires after an activation, with the new number of
	// active sites.
	SiteActivated func(active int)
	// ActivationError fires when an activation fails, with a coarse
	// reason: unavailable, timeout, canceled, or error.
	ActivationError func(reason string)
	// NonceBound fires after every successful BindNonce.
	NonceBound func()
	// BootstrapSite fires once per snapshot entry during Bootstrap,
	// with its outcome: registered, activated, malformed, missing_root,
	// or activation_error.
	BootstrapSite func(result string)
}

func (h Hooks) siteActivated(active int) {
	if h.SiteActivated != nil {
		h.SiteActivated(active)
	}
}

func (h Hooks) activationError(reason string) {
	if h.ActivationError != nil {
		h.ActivationError(reason)
	}
}

func (h Hooks) nonceBound() {
	if h.NonceBound != nil {
		h.NonceBound()
	}
}

func (h Hooks) bootstrapSite(result string) {
	if h.BootstrapSite != nil {
		h.BootstrapSite(result)
	}
}

// monotonic is a unix-seconds change stamp that never decreases, even
// across clock adjustments. Bump is loop-only; Load is safe anywhere.
type monotonic struct {
	v atomic.Int64
}

func (m *monotonic) Bump() {
	now := time.Now().Unix()
	if cur := m.v.Load(); now < cur {
		now = cur
	}
	m.v.Store(now)
}

func (m *monotonic) Load() int64 { return m.v.Load() }
