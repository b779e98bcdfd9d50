package site

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kestrelnet/zeronode/internal/address"
	"github.com/kestrelnet/zeronode/internal/content"
)

func startTestActor(t *testing.T) (*Handle, context.CancelFunc) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, content.ManifestFilename), []byte(testManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(address.MustParse("1Address111"), root, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	return Start(ctx, s), cancel
}

func TestActorLoadsManifest(t *testing.T) {
	h, cancel := startTestActor(t)
	defer cancel()
	ctx := context.Background()

	if err := h.LoadContent(ctx); err != nil {
		t.Fatalf("LoadContent: %v", err)
	}
	m, err := h.Manifest(ctx)
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if m == nil || m.Address != "1Address111" {
		t.Fatalf("manifest = %+v", m)
	}
}

func TestActorSerializesMutations(t *testing.T) {
	h, cancel := startTestActor(t)
	defer cancel()
	ctx := context.Background()
	if err := h.LoadContent(ctx); err != nil {
		t.Fatal(err)
	}

	// Racing closures would trip -race if two ran at once; the counter
	// also proves every op executed exactly once.
	n := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.do(ctx, func(*Site) { n++ })
		}()
	}
	wg.Wait()
	if n != 50 {
		t.Fatalf("ops executed %d times, want 50", n)
	}
}

func TestActorStopped(t *testing.T) {
	h, cancel := startTestActor(t)
	cancel()
	<-h.Done()

	err := h.LoadContent(context.Background())
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestActorRespectsCallerContext(t *testing.T) {
	h, cancel := startTestActor(t)
	defer cancel()

	ctx, cancelReq := context.WithCancel(context.Background())
	cancelReq()
	if err := h.LoadContent(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
