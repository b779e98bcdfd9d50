// Package sitehttp serves site files read-only from activated site
// roots: GET /content/{address}/*.
package sitehttp

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelnet/zeronode/internal/address"
	"github.com/kestrelnet/zeronode/internal/content"
	"github.com/kestrelnet/zeronode/internal/log"
	"github.com/kestrelnet/zeronode/internal/site"
)

// SiteSource is the registry surface the content handler needs.
type SiteSource interface {
	GetOrActivate(ctx context.Context, addr address.Address) (*site.Handle, error)
}

// Options configures the content handler.
type Options struct {
	Registry SiteSource
	Logger   log.Logger
}

type Handler struct {
	registry SiteSource
	log      log.Logger
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Handler{registry: opts.Registry, log: logger}
}

// Mount attaches the content routes to a chi router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/content/{address}", h.ServeHTTP)
	r.Get("/content/{address}/*", h.ServeHTTP)
	r.Head("/content/{address}", h.ServeHTTP)
	r.Head("/content/{address}/*", h.ServeHTTP)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// hardening: only allow GET/HEAD
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	rawAddr := chi.URLParam(r, "address")
	addr, err := address.Parse(rawAddr)
	if err != nil {
		respondPlain(w, http.StatusBadRequest, rawAddr+" is a malformed site address")
		return
	}

	handle, err := h.registry.GetOrActivate(ctx, addr)
	if err != nil {
		if errors.Is(err, content.ErrUnavailable) {
			respondPlain(w, http.StatusNotFound, "site content is not available")
			return
		}
		h.log.Error(ctx, err, "site activation failed", "site", addr.Short())
		respondPlain(w, http.StatusInternalServerError, "internal error")
		return
	}
	root, err := handle.Root(ctx)
	if err != nil {
		h.log.Error(ctx, err, "site root unavailable", "site", addr.Short())
		respondPlain(w, http.StatusInternalServerError, "internal error")
		return
	}

	inner := chi.URLParam(r, "*")
	fsys := os.DirFS(root)
	file, redirectTo, found := resolveInner(inner, fsys)
	if redirectTo != "" {
		// 308 keeps the method even though only GET/HEAD get this far
		http.Redirect(w, r, "/content/"+addr.String()+redirectTo, http.StatusPermanentRedirect)
		return
	}
	if !found {
		w.Header().Set("Cache-Control", "no-store")
		respondPlain(w, http.StatusNotFound, "404 page not found")
		return
	}

	http.ServeFileFS(w, r, fsys, file)
}

func respondPlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
