package duckdb

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Builder constructs parameterized SELECT queries.
type Builder struct {
	table      string
	columns    []string
	where      []whereClause
	orderBy    []string
	limit      int
	timeColumn string
}

type whereClause struct {
	expr string
	args []any
}

// NewQueryBuilder starts a query on table. The time column defaults to end_time.
func NewQueryBuilder(table string) *Builder {
	return &Builder{table: table, timeColumn: "end_time"}
}

// Select sets the selected columns or expressions. No columns selects *.
func (b *Builder) Select(columns ...string) *Builder {
	b.columns = append(b.columns, columns...)
	return b
}

// TimeColumn sets the column used by Since and TimeRange.
func (b *Builder) TimeColumn(name string) *Builder {
	b.timeColumn = name
	return b
}

// TimeRange keeps rows whose time column lies in [start, end].
func (b *Builder) TimeRange(start, end time.Time) *Builder {
	return b.Where(fmt.Sprintf("%s >= ? AND %s <= ?", b.timeColumn, b.timeColumn), start, end)
}

// Since keeps rows whose time column is at or after t. A zero t adds nothing.
func (b *Builder) Since(t time.Time) *Builder {
	if t.IsZero() {
		return b
	}
	return b.Gte(b.timeColumn, t)
}

// Where adds a condition. Conditions are joined with AND.
func (b *Builder) Where(expr string, args ...any) *Builder {
	b.where = append(b.where, whereClause{expr: expr, args: args})
	return b
}

// Eq adds column = value. An empty string value adds nothing.
func (b *Builder) Eq(column string, value any) *Builder {
	if s, ok := value.(string); ok && s == "" {
		return b
	}
	return b.Where(column+" = ?", value)
}

// In adds column IN (...). No values adds nothing.
func (b *Builder) In(column string, values ...any) *Builder {
	if len(values) == 0 {
		return b
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	return b.Where(fmt.Sprintf("%s IN (%s)", column, marks), values...)
}

// Gte adds column >= value.
func (b *Builder) Gte(column string, value any) *Builder {
	return b.Where(column+" >= ?", value)
}

// Lt adds column < value.
func (b *Builder) Lt(column string, value any) *Builder {
	return b.Where(column+" < ?", value)
}

// OrderBy adds sort columns; a "-" prefix sorts descending.
func (b *Builder) OrderBy(columns ...string) *Builder {
	for _, col := range columns {
		if rest, ok := strings.CutPrefix(col, "-"); ok {
			col = rest + " DESC"
		}
		b.orderBy = append(b.orderBy, col)
	}
	return b
}

// Limit caps the number of rows. Zero or less means no limit.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// withColumns returns a copy of b selecting exactly columns.
func (b *Builder) withColumns(columns []string) *Builder {
	c := *b
	c.columns = columns
	return &c
}

// Build returns the query and its arguments. It may be called repeatedly.
func (b *Builder) Build() (string, []any, error) {
	if b.table == "" {
		return "", nil, errors.New("table name is required")
	}

	var q strings.Builder
	var args []any

	q.WriteString("SELECT ")
	if len(b.columns) == 0 {
		q.WriteString("*")
	} else {
		q.WriteString(strings.Join(b.columns, ", "))
	}
	q.WriteString(" FROM ")
	q.WriteString(b.table)

	if len(b.where) > 0 {
		exprs := make([]string, len(b.where))
		for i, w := range b.where {
			exprs[i] = w.expr
			args = append(args, w.args...)
		}
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(exprs, " AND "))
	}
	if len(b.orderBy) > 0 {
		q.WriteString(" ORDER BY ")
		q.WriteString(strings.Join(b.orderBy, ", "))
	}
	if b.limit > 0 {
		q.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	return q.String(), args, nil
}
