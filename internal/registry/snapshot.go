package registry

import (
	"encoding/json"
	"os"

	"github.com/kestrelnet/zeronode/internal/site"
	"github.com/kestrelnet/zeronode/internal/xerrors"
)

// SnapshotFilename is the persisted site table inside the data dir,
// keyed by address string.
const SnapshotFilename = "sites.json"

// LoadSnapshot reads the persisted per-site storage metadata. A
// missing file is a fresh node, not an error.
func LoadSnapshot(path string) (map[string]site.Storage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]site.Storage{}, nil
		}
		return nil, xerrors.Wrapf(err, "reading snapshot %s", path)
	}
	var snap map[string]site.Storage
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, xerrors.Wrapf(err, "parsing snapshot %s", path)
	}
	if snap == nil {
		snap = map[string]site.Storage{}
	}
	return snap, nil
}

// SaveSnapshot writes the site table back, pretty-printed so operators
// can hand-edit it.
func SaveSnapshot(path string, snap map[string]site.Storage) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return xerrors.Wrap(err, "encoding snapshot")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return xerrors.Wrapf(err, "writing snapshot %s", path)
	}
	return nil
}
