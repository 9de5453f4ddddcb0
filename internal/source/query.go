package source

import (
	"fmt"
	"strings"
)

// Placeholder renders the n-th bind parameter, 1-based.
type Placeholder func(n int) string

// Question is the "?" placeholder style.
func Question(int) string { return "?" }

// Dollar is the "$n" placeholder style.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// QuoteIdent double-quotes an identifier. Embedded quotes are doubled.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// BuildSelect renders the fetch statement for a query. Records come back
// ordered by the primary key column when one is set.
func BuildSelect(q Query, ph Placeholder) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, c := range q.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(QuoteIdent(c))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(QuoteIdent(q.Table))

	var (
		args  []any
		conds []string
	)
	if q.UpdatedColumn != "" && q.Start != nil {
		args = append(args, *q.Start)
		conds = append(conds, QuoteIdent(q.UpdatedColumn)+" >= "+ph(len(args)))
	}
	if q.UpdatedColumn != "" && q.End != nil {
		args = append(args, *q.End)
		conds = append(conds, QuoteIdent(q.UpdatedColumn)+" <= "+ph(len(args)))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	if q.PKColumn != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(QuoteIdent(q.PKColumn))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String(), args
}

// BuildSelectOne renders a single-record lookup by primary key.
func BuildSelectOne(table, pkColumn string, columns []string, ph Placeholder) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, c := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(QuoteIdent(c))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(QuoteIdent(table))
	sb.WriteString(" WHERE ")
	sb.WriteString(QuoteIdent(pkColumn))
	sb.WriteString(" = ")
	sb.WriteString(ph(1))
	return sb.String()
}
