package authhttp

import (
	"sync"
	"time"
)

const (
	// DefaultAuditTTL bounds how long an issued nonce stays visible in
	// the audit set.
	DefaultAuditTTL = 15 * time.Minute
	// DefaultAuditCapacity bounds the audit set's size; the oldest
	// entry is evicted when it fills.
	DefaultAuditCapacity = 65536
)

// Audit records every nonce the gateway has issued. It exists for
// observability only: resolution authority lives in the registry, and
// losing an audit entry never invalidates a nonce. It is safe for
// concurrent use.
type Audit struct {
	ttl time.Duration
	cap int
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewAudit(ttl time.Duration, capacity int) *Audit {
	if ttl <= 0 {
		ttl = DefaultAuditTTL
	}
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &Audit{
		ttl:     ttl,
		cap:     capacity,
		now:     time.Now,
		entries: map[string]time.Time{},
	}
}

// Record adds a nonce, evicting expired entries first and the oldest
// entry if the set is still full.
func (a *Audit) Record(nonce string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	a.prune(now)
	if len(a.entries) >= a.cap {
		var oldest string
		var oldestAt time.Time
		for n, at := range a.entries {
			if oldest == "" || at.Before(oldestAt) {
				oldest, oldestAt = n, at
			}
		}
		delete(a.entries, oldest)
	}
	a.entries[nonce] = now
}

// Contains reports whether a nonce was issued within the TTL.
func (a *Audit) Contains(nonce string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	at, ok := a.entries[nonce]
	if !ok {
		return false
	}
	if a.now().Sub(at) > a.ttl {
		delete(a.entries, nonce)
		return false
	}
	return true
}

// Len reports the current entry count after pruning.
func (a *Audit) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prune(a.now())
	return len(a.entries)
}

func (a *Audit) prune(now time.Time) {
	for n, at := range a.entries {
		if now.Sub(at) > a.ttl {
			delete(a.entries, n)
		}
	}
}
