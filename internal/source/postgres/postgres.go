// Package postgres implements the record source over PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/slated/bungiesearch/internal/source"
)

// Compile-time check: Store implements source.Source.
var _ source.Source = (*Store)(nil)

// Config holds connection parameters for a PostgreSQL source.
type Config struct {
	// DSN is a pgx connection string, URL or keyword form.
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Store reads records and schema out of PostgreSQL.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens a PostgreSQL source. Connections are established lazily; use
// Ping to verify reachability.
func New(cfg Config, log *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	pgcfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	db := stdlib.OpenDB(*pgcfg)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	return &Store{db: db, log: log}, nil
}

func (s *Store) Fetch(ctx context.Context, q source.Query) (source.Iterator, error) {
	stmt, args := source.BuildSelect(q, source.Dollar)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", q.Table, err)
	}
	return source.NewRowIterator(rows)
}

func (s *Store) FetchOne(ctx context.Context, table, pkColumn string, id any, columns []string) (map[string]any, error) {
	stmt := source.BuildSelectOne(table, pkColumn, columns, source.Dollar)
	rows, err := s.db.QueryContext(ctx, stmt, id)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", table, err)
	}
	it, err := source.NewRowIterator(rows)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	rec, err := it.Next()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s %v: %w", table, id, source.ErrNotFound)
	}
	return rec, err
}

const columnsQuery = `
SELECT
    c.column_name,
    c.data_type,
    c.is_nullable = 'YES',
    c.column_default,
    EXISTS (
        SELECT 1
        FROM information_schema.table_constraints tc
        JOIN information_schema.key_column_usage kcu
          ON kcu.constraint_name = tc.constraint_name
         AND kcu.table_schema = tc.table_schema
        WHERE tc.table_name = c.table_name
          AND tc.table_schema = c.table_schema
          AND tc.constraint_type = 'PRIMARY KEY'
          AND kcu.column_name = c.column_name
    ),
    EXISTS (
        SELECT 1
        FROM information_schema.table_constraints tc
        JOIN information_schema.key_column_usage kcu
          ON kcu.constraint_name = tc.constraint_name
         AND kcu.table_schema = tc.table_schema
        WHERE tc.table_name = c.table_name
          AND tc.table_schema = c.table_schema
          AND tc.constraint_type = 'FOREIGN KEY'
          AND kcu.column_name = c.column_name
    )
FROM information_schema.columns c
WHERE c.table_schema = current_schema()
  AND c.table_name = $1
ORDER BY c.ordinal_position`

func (s *Store) Columns(ctx context.Context, table string) ([]source.Column, error) {
	rows, err := s.db.QueryContext(ctx, columnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("introspect %q: %w", table, err)
	}
	defer rows.Close()

	var cols []source.Column
	for rows.Next() {
		var (
			c   source.Column
			def sql.NullString
		)
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &def, &c.PrimaryKey, &c.ForeignKey); err != nil {
			return nil, fmt.Errorf("introspect %q: %w", table, err)
		}
		applyDefault(&c, def)
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("introspect %q: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: %w", table, source.ErrNoTable)
	}
	return cols, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// applyDefault classifies a column default. Sequence-backed defaults mark
// the column serial instead of carrying a literal.
func applyDefault(c *source.Column, def sql.NullString) {
	if !def.Valid {
		return
	}
	if strings.Contains(def.String, "nextval(") {
		c.DataType = "serial"
		return
	}
	c.HasDefault = true
	c.Default = cleanDefault(def.String)
}

// cleanDefault strips the cast suffix and outer quotes postgres renders
// around literal defaults, e.g. 'draft'::character varying.
func cleanDefault(s string) string {
	if i := strings.Index(s, "::"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}
