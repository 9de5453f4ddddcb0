// Package source defines the record source contract the syncer reads from.
// Backends live in subpackages.
package source

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a record lookup matches nothing.
	ErrNotFound = errors.New("record not found")

	// ErrNoTable is returned when introspection targets a missing table.
	ErrNoTable = errors.New("table not found")
)

// Column describes one relational column, as reported by introspection.
type Column struct {
	Name     string
	DataType string
	Nullable bool
	// HasDefault reports a literal column default, carried in Default.
	// Engine-side defaults such as sequences do not count.
	HasDefault bool
	Default    any
	PrimaryKey bool
	ForeignKey bool
}

// Query selects records for a bulk update.
type Query struct {
	Table    string
	Columns  []string
	PKColumn string
	// UpdatedColumn, together with Start and End, bounds the fetch to a
	// time window.
	UpdatedColumn string
	Start         *time.Time
	End           *time.Time
	// Limit caps returned records. Zero or negative means no limit.
	Limit int64
}

// Iterator streams fetched records. Next returns io.EOF after the last one.
type Iterator interface {
	Next() (map[string]any, error)
	Close() error
}

// Source reads records and schema out of relational storage.
type Source interface {
	// Fetch streams records matching the query, ordered by primary key.
	Fetch(ctx context.Context, q Query) (Iterator, error)
	// FetchOne reads a single record by primary key.
	FetchOne(ctx context.Context, table, pkColumn string, id any, columns []string) (map[string]any, error)
	// Columns introspects a table's schema in declaration order.
	Columns(ctx context.Context, table string) ([]Column, error)
	Ping(ctx context.Context) error
	Close() error
}
