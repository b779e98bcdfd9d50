package site

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrelnet/zeronode/internal/address"
	"github.com/kestrelnet/zeronode/internal/content"
)

const testManifest = `{
	"address": "1Address111",
	"files": {"index.html": {"sha512": "aa", "size": 2}}
}`

func newTestSite(t *testing.T, withManifest bool) *Site {
	t.Helper()
	root := t.TempDir()
	if withManifest {
		if err := os.WriteFile(filepath.Join(root, content.ManifestFilename), []byte(testManifest), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return New(address.MustParse("1Address111"), root, Options{})
}

func TestHasContent(t *testing.T) {
	if newTestSite(t, false).HasContent() {
		t.Fatal("empty root should have no content")
	}
	if !newTestSite(t, true).HasContent() {
		t.Fatal("manifest on disk should be detected")
	}
}

func TestLoadContent(t *testing.T) {
	s := newTestSite(t, true)
	if err := s.LoadContent(context.Background()); err != nil {
		t.Fatalf("LoadContent: %v", err)
	}
	if s.Manifest() == nil || s.Manifest().Address != "1Address111" {
		t.Fatalf("manifest = %+v", s.Manifest())
	}
}

func TestLoadContentMissingManifest(t *testing.T) {
	s := newTestSite(t, false)
	err := s.LoadContent(context.Background())
	if !errors.Is(err, content.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestLoadContentFromPathRejectsEscape(t *testing.T) {
	s := newTestSite(t, true)
	if _, err := s.LoadContentFromPath(context.Background(), "../evil/content.json"); err == nil {
		t.Fatal("dot segments must be rejected")
	}
}

func TestStorageRoundTrip(t *testing.T) {
	s := newTestSite(t, true)
	s.ApplyStorage(Storage{
		Keys:     Keys{WrapperKey: "wk", AjaxKey: "ak"},
		Settings: Settings{Serving: true, Own: true},
	})
	if _, err := s.SaveStorage(context.Background()); err != nil {
		t.Fatalf("SaveStorage: %v", err)
	}

	s2 := New(s.Addr(), s.Root(), Options{})
	ok, err := s2.LoadStorage(context.Background(), filepath.Join(s.Root(), StorageFilename))
	if err != nil || !ok {
		t.Fatalf("LoadStorage: ok=%v err=%v", ok, err)
	}
	if got := s2.Storage(); got.Keys.WrapperKey != "wk" || !got.Settings.Own {
		t.Fatalf("storage = %+v", got)
	}
}

func TestLoadStorageMissingFile(t *testing.T) {
	s := newTestSite(t, false)
	ok, err := s.LoadStorage(context.Background(), filepath.Join(s.Root(), StorageFilename))
	if err != nil {
		t.Fatalf("missing storage file should not error: %v", err)
	}
	if ok {
		t.Fatal("ok should be false for a missing file")
	}
}

func TestInitDownloadUnavailable(t *testing.T) {
	s := newTestSite(t, false)
	_, err := s.InitDownload(context.Background())
	if !errors.Is(err, content.ErrUnavailable) {
		t.Fatalf("stubbed fetcher should report ErrUnavailable, got %v", err)
	}
}

func TestAddFileToContent(t *testing.T) {
	s := newTestSite(t, true)
	if err := s.LoadContent(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), "new.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.AddFileToContent(context.Background(), "new.txt"); err != nil {
		t.Fatalf("AddFileToContent: %v", err)
	}
	ref, ok := s.Manifest().Files["new.txt"]
	if !ok {
		t.Fatal("file not registered")
	}
	if ref.Size != 5 || len(ref.SHA512) != 128 {
		t.Fatalf("ref = %+v", ref)
	}
}

type fakeSigner struct{ sig string }

func (f fakeSigner) Sign(manifest []byte, privateKey string) (string, error) {
	return f.sig + ":" + privateKey, nil
}

func TestSignContent(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, content.ManifestFilename), []byte(testManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(address.MustParse("1Address111"), root, Options{Signer: fakeSigner{sig: "signed"}})
	if err := s.LoadContent(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := s.SignContent(context.Background(), "", "privkey"); err != nil {
		t.Fatalf("SignContent: %v", err)
	}
	if got := s.Manifest().Signs["1Address111"]; got != "signed:privkey" {
		t.Fatalf("sign = %q", got)
	}
}

func TestSignContentNoSigner(t *testing.T) {
	s := newTestSite(t, true)
	if err := s.SignContent(context.Background(), "", "k"); !errors.Is(err, content.ErrNoSigner) {
		t.Fatalf("err = %v, want ErrNoSigner", err)
	}
}

func TestSaveContent(t *testing.T) {
	s := newTestSite(t, true)
	ctx := context.Background()
	if err := s.LoadContent(ctx); err != nil {
		t.Fatal(err)
	}
	s.Manifest().Title = "renamed"

	if err := s.SaveContent(ctx, ""); err != nil {
		t.Fatalf("SaveContent: %v", err)
	}
	data, err := os.ReadFile(s.ContentPath())
	if err != nil {
		t.Fatal(err)
	}
	var m content.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m.Title != "renamed" {
		t.Fatalf("persisted title = %q", m.Title)
	}
}
