package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleManifest = `{
	"address": "1Address111",
	"title": "test site",
	"files": {
		"index.html": {"sha512": "deadbeef", "size": 512},
		"js/app.js": {"sha512": "cafe", "size": 1024}
	},
	"files_optional": {
		"data/optional.bin": {"sha512": "ff", "size": 2}
	},
	"signs_required": 1,
	"signs": {"1Address111": "sig"},
	"modified": 1602925046.0
}`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.Address != "1Address111" {
		t.Fatalf("address = %q", m.Address)
	}
	if m.FileCount() != 2 {
		t.Fatalf("FileCount = %d", m.FileCount())
	}
	if got := m.Files["index.html"]; got.SHA512 != "deadbeef" || got.Size != 512 {
		t.Fatalf("index.html ref = %+v", got)
	}
	if !m.HasFile("data/optional.bin") {
		t.Fatal("optional files should count as listed")
	}
	if m.HasFile("missing.txt") {
		t.Fatal("unlisted file reported as present")
	}
}

func TestParseManifestBadJSON(t *testing.T) {
	if _, err := ParseManifest([]byte("{")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParseManifestNilFiles(t *testing.T) {
	m, err := ParseManifest([]byte(`{"address":"1Address111"}`))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.Files == nil {
		t.Fatal("Files map should never be nil")
	}
}

func TestLoadManifestMissingIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadManifest(filepath.Join(dir, ManifestFilename))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("missing manifest = %v, want ErrUnavailable", err)
	}
}

func TestLoadManifestFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFilename)
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Title != "test site" {
		t.Fatalf("title = %q", m.Title)
	}
	if !Exists(path) {
		t.Fatal("Exists should see the manifest")
	}
}

func TestNopFetcherReportsUnavailable(t *testing.T) {
	got, err := NopFetcher().Fetch(context.Background(), "1Address111")
	if err != nil {
		t.Fatalf("NopFetcher: %v", err)
	}
	if got.Available {
		t.Fatal("NopFetcher must report unavailability")
	}
}
