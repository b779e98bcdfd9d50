// Package schema manages per-site database schemas: the dbschema.json
// model, one sqlite connection per site address, and a tagged value
// union for query results.
package schema

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/kestrelnet/zeronode/internal/pathutil"
	"github.com/kestrelnet/zeronode/internal/xerrors"
)

// Filename is the schema descriptor inside a site root.
const Filename = "dbschema.json"

// ErrSchema wraps every schema-layer failure. A site whose schema is
// unusable keeps serving; it just has no database.
var ErrSchema = errors.New("site schema error")

// Table describes one table: column [name, definition] pairs plus full
// index statements, carried verbatim from the descriptor.
type Table struct {
	Cols          [][2]string `json:"cols"`
	Indexes       []string    `json:"indexes,omitempty"`
	SchemaChanged int64       `json:"schema_changed,omitempty"`
}

// Schema models a site's dbschema.json.
type Schema struct {
	DBName  string           `json:"db_name"`
	DBFile  string           `json:"db_file"`
	Version int              `json:"version"`
	Tables  map[string]Table `json:"tables"`
}

// Load reads the schema descriptor from a site root. A missing
// descriptor is not an error: most sites have no database.
func Load(root string) (*Schema, error) {
	data, err := os.ReadFile(filepath.Join(root, Filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.Wrapf(ErrSchema, "reading %s: %v", Filename, err)
	}
	var sc Schema
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, xerrors.Wrapf(ErrSchema, "parsing %s: %v", Filename, err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Schema) validate() error {
	if sc.DBFile == "" {
		return xerrors.Wrap(ErrSchema, "db_file is required")
	}
	if !pathutil.SafeInnerPath(sc.DBFile) {
		return xerrors.Wrapf(ErrSchema, "unsafe db_file %q", sc.DBFile)
	}
	for name, t := range sc.Tables {
		if len(t.Cols) == 0 {
			return xerrors.Wrapf(ErrSchema, "table %s has no columns", name)
		}
	}
	return nil
}
