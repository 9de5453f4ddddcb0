// Package sqlite implements the record source over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/slated/bungiesearch/internal/source"
)

// Compile-time check: Store implements source.Source.
var _ source.Source = (*Store)(nil)

// Config holds connection parameters for a SQLite source.
type Config struct {
	// Path is the database file, or ":memory:" for an in-memory database.
	Path string
}

// Store reads records and schema out of SQLite.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens a SQLite source and applies the connection pragmas.
func New(cfg Config, log *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", cfg.Path, err)
	}
	if cfg.Path == ":memory:" || strings.Contains(cfg.Path, "mode=memory") {
		// An in-memory database exists per connection.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return &Store{db: db, log: log}, nil
}

func (s *Store) Fetch(ctx context.Context, q source.Query) (source.Iterator, error) {
	stmt, args := source.BuildSelect(q, source.Question)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", q.Table, err)
	}
	return source.NewRowIterator(rows)
}

func (s *Store) FetchOne(ctx context.Context, table, pkColumn string, id any, columns []string) (map[string]any, error) {
	stmt := source.BuildSelectOne(table, pkColumn, columns, source.Question)
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

func (s *Store) Columns(ctx context.Context, table string) ([]source.Column, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+source.QuoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("introspect %q: %w", table, err)
	}
	defer rows.Close()

	var cols []source.Column
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			def     sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &def, &pk); err != nil {
			return nil, fmt.Errorf("introspect %q: %w", table, err)
		}
		c := source.Column{
			Name:       name,
			DataType:   typ,
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
		}
		if def.Valid {
			c.HasDefault = true
			c.Default = trimQuotes(def.String)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("introspect %q: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: %w", table, source.ErrNoTable)
	}

	fks, err := s.foreignKeys(ctx, table)
	if err != nil {
		return nil, err
	}
	for i := range cols {
		if fks[cols[i].Name] {
			cols[i].ForeignKey = true
		}
	}
	return cols, nil
}

// foreignKeys returns the set of referencing column names of a table.
func (s *Store) foreignKeys(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA foreign_key_list("+source.QuoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("foreign keys %q: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var (
			id, seq            int
			refTable, from     string
			to                 sql.NullString
			onUpdate, onDelete string
			match              string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("foreign keys %q: %w", table, err)
		}
		out[from] = true
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// trimQuotes strips the outer single quotes of a literal default.
func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}
