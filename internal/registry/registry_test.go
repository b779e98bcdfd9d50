package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kestrelnet/zeronode/internal/address"
	"github.com/kestrelnet/zeronode/internal/content"
	"github.com/kestrelnet/zeronode/internal/site"
)

const testManifest = `{
	"address": "1Address111",
	"files": {"index.html": {"sha512": "aa", "size": 2}}
}`

var testAddr = address.MustParse("1Address111")

func writeSiteRoot(t *testing.T, dataDir, addr string) string {
	t.Helper()
	root := filepath.Join(dataDir, addr)
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, content.ManifestFilename), []byte(testManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

// fakeFetcher counts calls, optionally blocks on gate, and materializes
// the manifest on disk when armed with a root.
type fakeFetcher struct {
	calls atomic.Int32
	gate  chan struct{}
	root  string
}

func (f *fakeFetcher) Fetch(ctx context.Context, addr string) (content.Fetched, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return content.Fetched{}, ctx.Err()
		}
	}
	if f.root == "" {
		return content.Fetched{}, nil
	}
	if err := os.WriteFile(filepath.Join(f.root, content.ManifestFilename), []byte(testManifest), 0o644); err != nil {
		return content.Fetched{}, err
	}
	return content.Fetched{Available: true}, nil
}

func startRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return Start(ctx, opts)
}

func TestGetOrActivate(t *testing.T) {
	dataDir := t.TempDir()
	writeSiteRoot(t, dataDir, testAddr.String())
	r := startRegistry(t, Options{DataDir: dataDir})
	ctx := context.Background()

	h, err := r.GetOrActivate(ctx, testAddr)
	if err != nil {
		t.Fatalf("GetOrActivate: %v", err)
	}
	if h.Addr() != testAddr {
		t.Fatalf("handle addr = %v", h.Addr())
	}
	if r.SitesChanged() == 0 {
		t.Fatal("activation should bump the change stamp")
	}

	again, err := r.GetOrActivate(ctx, testAddr)
	if err != nil {
		t.Fatalf("second GetOrActivate: %v", err)
	}
	if again != h {
		t.Fatal("repeat activation returned a different handle")
	}
}

func TestGetOrActivateUnavailable(t *testing.T) {
	var reason string
	r := startRegistry(t, Options{
		DataDir: t.TempDir(),
		Hooks:   Hooks{ActivationError: func(s string) { reason = s }},
	})

	_, err := r.GetOrActivate(context.Background(), testAddr)
	if !errors.Is(err, content.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if reason != "unavailable" {
		t.Fatalf("hook reason = %q", reason)
	}
}

func TestGetOrActivateViaFetcher(t *testing.T) {
	dataDir := t.TempDir()
	root := filepath.Join(dataDir, testAddr.String())
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	// Root exists, manifest does not: the fetcher delivers it.
	f := &fakeFetcher{root: root}
	r := startRegistry(t, Options{DataDir: dataDir, Fetcher: f})

	if _, err := r.GetOrActivate(context.Background(), testAddr); err != nil {
		t.Fatalf("GetOrActivate: %v", err)
	}
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d, want 1", n)
	}
}

func TestConcurrentActivationJoins(t *testing.T) {
	dataDir := t.TempDir()
	root := filepath.Join(dataDir, testAddr.String())
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	f := &fakeFetcher{root: root, gate: make(chan struct{})}
	r := startRegistry(t, Options{DataDir: dataDir, Fetcher: f})
	ctx := context.Background()

	const callers = 8
	handles := make([]*site.Handle, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = r.GetOrActivate(ctx, testAddr)
		}(i)
	}
	// Let the callers pile up behind the single in-flight activation.
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if handles[i] != handles[0] {
			t.Fatalf("caller %d got a different handle", i)
		}
	}
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d, want exactly one activation", n)
	}
}

func TestActivationTimeout(t *testing.T) {
	dataDir := t.TempDir()
	root := filepath.Join(dataDir, testAddr.String())
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	f := &fakeFetcher{root: root, gate: make(chan struct{})} // never opens
	r := startRegistry(t, Options{
		DataDir:           dataDir,
		Fetcher:           f,
		ActivationTimeout: 20 * time.Millisecond,
	})

	_, err := r.GetOrActivate(context.Background(), testAddr)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestReactivateRunningSiteThroughActor(t *testing.T) {
	dataDir := t.TempDir()
	root := writeSiteRoot(t, dataDir, testAddr.String())
	f := &fakeFetcher{root: root}
	r := startRegistry(t, Options{DataDir: dataDir, Fetcher: f})
	ctx := context.Background()

	h, err := r.GetOrActivate(ctx, testAddr)
	if err != nil {
		t.Fatalf("GetOrActivate: %v", err)
	}

	// Keep the actor busy with manifest reloads while the content is
	// restored, so any refresh bypassing the actor mutates the site
	// concurrently and trips the race detector.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = h.LoadContent(ctx)
			}
		}
	}()

	if err := os.Remove(filepath.Join(root, content.ManifestFilename)); err != nil {
		t.Fatal(err)
	}
	again, err := r.GetOrActivate(ctx, testAddr)
	close(stop)
	wg.Wait()
	if err != nil {
		t.Fatalf("re-activation: %v", err)
	}
	if again != h {
		t.Fatal("re-activation must reuse the running handle")
	}
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d, want 1", n)
	}
	m, err := h.Manifest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Address != testAddr.String() {
		t.Fatalf("manifest after refresh = %+v", m)
	}
}

func TestResolveByNonce(t *testing.T) {
	dataDir := t.TempDir()
	writeSiteRoot(t, dataDir, testAddr.String())
	r := startRegistry(t, Options{DataDir: dataDir})
	ctx := context.Background()

	if _, err := r.ResolveByNonce(ctx, "nope"); !errors.Is(err, ErrUnknownNonce) {
		t.Fatalf("unknown nonce err = %v", err)
	}

	if err := r.BindNonce(ctx, testAddr, "nonce123"); err != nil {
		t.Fatalf("BindNonce: %v", err)
	}
	h, err := r.ResolveByNonce(ctx, "nonce123")
	if err != nil {
		t.Fatalf("ResolveByNonce: %v", err)
	}
	if h.Addr() != testAddr {
		t.Fatalf("resolved addr = %v", h.Addr())
	}

	// Resolution does not consume: wrapper keys live in the same table.
	if _, err := r.ResolveByNonce(ctx, "nonce123"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
}

func TestBindNonceUnavailableSite(t *testing.T) {
	r := startRegistry(t, Options{DataDir: t.TempDir()})
	err := r.BindNonce(context.Background(), testAddr, "n")
	if !errors.Is(err, content.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestBootstrap(t *testing.T) {
	dataDir := t.TempDir()
	writeSiteRoot(t, dataDir, testAddr.String())
	missing := "1MissingRoot11"

	results := map[string]int{}
	var mu sync.Mutex
	r := startRegistry(t, Options{
		DataDir: dataDir,
		Storage: map[string]site.Storage{
			testAddr.String(): {Keys: site.Keys{WrapperKey: "wk-boot", AjaxKey: "ak-boot"}},
			missing:           {},
			"not an address":  {},
		},
		Hooks: Hooks{BootstrapSite: func(res string) {
			mu.Lock()
			results[res]++
			mu.Unlock()
		}},
	})
	ctx := context.Background()

	if err := r.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	regd, err := r.Registered(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(regd) != 1 || regd[0] != testAddr {
		t.Fatalf("registered = %v", regd)
	}

	// The persisted wrapper key resolves like any nonce.
	h, err := r.ResolveByNonce(ctx, "wk-boot")
	if err != nil {
		t.Fatalf("wrapper key resolve: %v", err)
	}
	if h.Addr() != testAddr {
		t.Fatalf("resolved addr = %v", h.Addr())
	}
	if _, err := r.ResolveByAjaxKey(ctx, "ak-boot"); err != nil {
		t.Fatalf("ajax key resolve: %v", err)
	}

	want := map[string]int{"registered": 1, "activated": 1, "missing_root": 1, "malformed": 1}
	for k, n := range want {
		if results[k] != n {
			t.Fatalf("bootstrap result %s = %d, want %d (all: %v)", k, results[k], n, results)
		}
	}
}

func TestRemoveSiteLeavesActorRunning(t *testing.T) {
	dataDir := t.TempDir()
	writeSiteRoot(t, dataDir, testAddr.String())
	r := startRegistry(t, Options{DataDir: dataDir})
	ctx := context.Background()

	h, err := r.GetOrActivate(ctx, testAddr)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.RemoveSite(ctx, testAddr); err != nil {
		t.Fatalf("RemoveSite: %v", err)
	}

	// Removal unregisters the address but does not tear down the actor.
	if _, err := h.Manifest(ctx); err != nil {
		t.Fatalf("handle after removal: %v", err)
	}
	regd, err := r.Registered(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(regd) != 0 {
		t.Fatalf("registered = %v, want empty", regd)
	}
}

func TestRegistryStopped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := Start(ctx, Options{DataDir: t.TempDir()})
	cancel()
	<-r.Done()

	if _, err := r.GetOrActivate(context.Background(), testAddr); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}
