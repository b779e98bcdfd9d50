package schema

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kestrelnet/zeronode/internal/address"
	"github.com/kestrelnet/zeronode/internal/log"
	"github.com/kestrelnet/zeronode/internal/xerrors"
)

// Store holds at most one schema record and one open database
// connection per site address.
type Store struct {
	log log.Logger

	mu      sync.Mutex
	schemas map[string]*Schema
	conns   map[string]*sql.DB
}

func NewStore(logger log.Logger) *Store {
	if logger == nil {
		logger = log.Nop()
	}
	return &Store{
		log:     logger,
		schemas: map[string]*Schema{},
		conns:   map[string]*sql.DB{},
	}
}

// Register records the schema for an address, replacing any previous
// record. It does not open a connection.
func (st *Store) Register(addr address.Address, sc *Schema) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.schemas[addr.String()] = sc
}

// Schema returns the registered schema for an address.
func (st *Store) Schema(addr address.Address) (*Schema, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sc, ok := st.schemas[addr.String()]
	return sc, ok
}

// Connect opens the address's database under root, creating the file
// and the declared tables as needed. It is idempotent: if a connection
// is already open for the address it is kept and Connect returns nil,
// so re-activation never opens a second connection.
func (st *Store) Connect(addr address.Address, root string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	key := addr.String()
	if _, ok := st.conns[key]; ok {
		return nil
	}
	sc, ok := st.schemas[key]
	if !ok || sc == nil {
		return xerrors.Wrapf(ErrSchema, "no schema registered for %s", addr.Short())
	}

	path := filepath.Join(root, filepath.FromSlash(sc.DBFile))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return xerrors.Wrapf(ErrSchema, "creating db dir: %v", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return xerrors.Wrapf(ErrSchema, "opening %s: %v", sc.DBFile, err)
	}
	if err := apply(db, sc); err != nil {
		db.Close()
		return err
	}
	st.conns[key] = db
	st.log.Info(context.Background(), "site database connected",
		"site", addr.Short(), "db_file", sc.DBFile, "tables", len(sc.Tables))
	return nil
}

// Conn returns the open connection for an address, if any.
func (st *Store) Conn(addr address.Address) (*sql.DB, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	db, ok := st.conns[addr.String()]
	return db, ok
}

// Open reports the number of open connections.
func (st *Store) Open() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.conns)
}

// Close closes every open connection.
func (st *Store) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	var errs []error
	for key, db := range st.conns {
		if err := db.Close(); err != nil {
			errs = append(errs, xerrors.Wrapf(err, "closing db for %s", key))
		}
		delete(st.conns, key)
	}
	return errors.Join(errs...)
}

// apply creates the declared tables and indexes. Statements use
// IF NOT EXISTS so reconnecting to an existing file is harmless.
func apply(db *sql.DB, sc *Schema) error {
	for name, t := range sc.Tables {
		var cols []string
		for _, c := range t.Cols {
			cols = append(cols, c[0]+" "+c[1])
		}
		ddl := "CREATE TABLE IF NOT EXISTS " + name + " (" + strings.Join(cols, ", ") + ")"
		if _, err := db.Exec(ddl); err != nil {
			return xerrors.Wrapf(ErrSchema, "creating table %s: %v", name, err)
		}
		for _, idx := range t.Indexes {
			stmt := idx
			if !strings.Contains(strings.ToUpper(stmt), "IF NOT EXISTS") {
				stmt = strings.Replace(stmt, "CREATE INDEX ", "CREATE INDEX IF NOT EXISTS ", 1)
				stmt = strings.Replace(stmt, "CREATE UNIQUE INDEX ", "CREATE UNIQUE INDEX IF NOT EXISTS ", 1)
			}
			if _, err := db.Exec(stmt); err != nil {
				return xerrors.Wrapf(ErrSchema, "creating index on %s: %v", name, err)
			}
		}
	}
	return nil
}
