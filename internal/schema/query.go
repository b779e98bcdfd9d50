package schema

import (
	"context"
	"database/sql"

	"github.com/kestrelnet/zeronode/internal/xerrors"
)

// Row is one result row keyed by column name.
type Row map[string]Value

// Query runs q against db and converts every cell into the Value
// union, so callers never touch driver types.
func Query(ctx context.Context, db *sql.DB, q string, args ...any) ([]Row, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, xerrors.Wrapf(ErrSchema, "query: %v", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, xerrors.Wrapf(ErrSchema, "columns: %v", err)
	}

	var out []Row
	cells := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range cells {
		ptrs[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, xerrors.Wrapf(ErrSchema, "scan: %v", err)
		}
		r := make(Row, len(cols))
		for i, name := range cols {
			r[name] = FromDriver(cells[i])
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrapf(ErrSchema, "rows: %v", err)
	}
	return out, nil
}
