// Package content models the signed manifest that describes a site's
// files, and the I/O contracts the registry consumes: per-site storage
// metadata, content loading/signing, and the network fetch capability.
package content

import (
	"encoding/json"
	"io/fs"
	"os"

	"github.com/kestrelnet/zeronode/internal/xerrors"
)

// ManifestFilename is the canonical manifest file inside a site root;
// its presence is the activation precondition.
const ManifestFilename = "content.json"

// FileRef describes one published file.
type FileRef struct {
	SHA512 string `json:"sha512"`
	Size   int64  `json:"size"`
}

// Manifest is a site's signed content descriptor.
type Manifest struct {
	Address       string             `json:"address"`
	Title         string             `json:"title,omitempty"`
	Description   string             `json:"description,omitempty"`
	Files         map[string]FileRef `json:"files"`
	FilesOptional map[string]FileRef `json:"files_optional,omitempty"`
	Includes      map[string]Include `json:"includes,omitempty"`
	Signers       []string           `json:"signers,omitempty"`
	SignersSign   string             `json:"signers_sign,omitempty"`
	SignsRequired int                `json:"signs_required,omitempty"`
	Signs         map[string]string  `json:"signs,omitempty"`
	Modified      float64            `json:"modified,omitempty"`
	InnerPath     string             `json:"-"`
}

// Include references a nested manifest with its own signers.
type Include struct {
	Signers         []string `json:"signers,omitempty"`
	SignersRequired int      `json:"signers_required,omitempty"`
}

// ParseManifest decodes a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, xerrors.Wrap(err, "parsing manifest")
	}
	if m.Files == nil {
		m.Files = map[string]FileRef{}
	}
	return &m, nil
}

// LoadManifest reads and decodes the manifest at path. A missing file
// maps to ErrUnavailable so callers can treat it as a pending download.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrUnavailable
		}
		return nil, xerrors.Wrapf(err, "reading manifest %s", path)
	}
	return ParseManifest(data)
}

// FileCount returns the number of required published files.
func (m *Manifest) FileCount() int { return len(m.Files) }

// HasFile reports whether innerPath is listed, required or optional.
func (m *Manifest) HasFile(innerPath string) bool {
	if _, ok := m.Files[innerPath]; ok {
		return true
	}
	_, ok := m.FilesOptional[innerPath]
	return ok
}

// Exists reports whether a manifest file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ExistsFS is the fs.FS variant of Exists, for tests over fstest maps.
func ExistsFS(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
