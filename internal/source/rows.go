package source

import (
	"database/sql"
	"io"
)

var _ Iterator = (*RowIterator)(nil)

// RowIterator adapts sql.Rows to the Iterator contract, one generic record
// per row.
type RowIterator struct {
	rows *sql.Rows
	cols []string
}

// NewRowIterator wraps a result set. It owns the rows and closes them on
// Close or on the first error.
func NewRowIterator(rows *sql.Rows) (*RowIterator, error) {
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &RowIterator{rows: rows, cols: cols}, nil
}

func (it *RowIterator) Next() (map[string]any, error) {
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	vals := make([]any, len(it.cols))
	ptrs := make([]any, len(it.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := it.rows.Scan(ptrs...); err != nil {
		it.rows.Close()
		return nil, err
	}

	rec := make(map[string]any, len(it.cols))
	for i, c := range it.cols {
		rec[c] = NormalizeValue(vals[i])
	}
	return rec, nil
}

func (it *RowIterator) Close() error { return it.rows.Close() }

// NormalizeValue converts driver-specific scan values into plain Go values.
// Byte slices become strings so text columns look the same across drivers.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case sql.RawBytes:
		return string(x)
	default:
		return v
	}
}
