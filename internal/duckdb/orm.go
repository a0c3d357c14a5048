package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/coral-mesh/pipelinescope/internal/retry"
)

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrNotFound is returned by Get when no row matches.
var ErrNotFound = errors.New("row not found")

// Table maps struct T onto a DuckDB table through `duckdb:"column[,pk]"` tags.
type Table[T any] struct {
	db        Execer
	name      string
	columns   []string
	pkColumns []string
	fields    []int // field index per column
}

// NewTable builds the column mapping for T. It panics when T is not a struct.
func NewTable[T any](db Execer, name string) *Table[T] {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		panic("duckdb.Table type parameter must be a struct")
	}

	t := &Table[T]{db: db, name: name}
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("duckdb")
		if tag == "" || tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")
		col := strings.TrimSpace(parts[0])
		t.columns = append(t.columns, col)
		t.fields = append(t.fields, i)
		for _, opt := range parts[1:] {
			if strings.TrimSpace(opt) == "pk" {
				t.pkColumns = append(t.pkColumns, col)
			}
		}
	}
	return t
}

// Name returns the table name.
func (t *Table[T]) Name() string {
	return t.name
}

// Columns returns the mapped column names in field order.
func (t *Table[T]) Columns() []string {
	return append([]string(nil), t.columns...)
}

func (t *Table[T]) insertQuery() string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	// #nosec G201 - table and column names come from struct tags
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(t.columns, ", "), marks)
}

func (t *Table[T]) values(item *T) []any {
	v := reflect.ValueOf(item).Elem()
	out := make([]any, len(t.fields))
	for i, idx := range t.fields {
		out[i] = v.Field(idx).Interface()
	}
	return out
}

func (t *Table[T]) dest(item *T) []any {
	v := reflect.ValueOf(item).Elem()
	out := make([]any, len(t.fields))
	for i, idx := range t.fields {
		out[i] = v.Field(idx).Addr().Interface()
	}
	return out
}

// Insert writes one row, retrying DuckDB write conflicts.
func (t *Table[T]) Insert(ctx context.Context, item *T) error {
	query := t.insertQuery()
	values := t.values(item)
	return retry.Do(ctx, retry.WriteConflicts, func() error {
		_, err := t.db.ExecContext(ctx, query, values...)
		return err
	}, isTransactionConflict)
}

// BatchInsert writes items with one prepared statement. When the table is bound to
// a *sql.DB the batch runs in its own transaction; on a *sql.Tx it joins the caller's.
func (t *Table[T]) BatchInsert(ctx context.Context, items []*T) (err error) {
	if len(items) == 0 {
		return nil
	}

	var tx *sql.Tx
	switch d := t.db.(type) {
	case *sql.Tx:
		tx = d
	case *sql.DB:
		tx, err = d.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
				return
			}
			if err = tx.Commit(); err != nil {
				err = fmt.Errorf("commit: %w", err)
			}
		}()
	default:
		return fmt.Errorf("unsupported Execer type for BatchInsert: %T", t.db)
	}

	stmt, err := tx.PrepareContext(ctx, t.insertQuery())
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", t.name, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, item := range items {
		if _, err = stmt.ExecContext(ctx, t.values(item)...); err != nil {
			return fmt.Errorf("insert into %s: %w", t.name, err)
		}
	}
	return nil
}

// Get returns the row whose first primary key column equals id.
func (t *Table[T]) Get(ctx context.Context, id any) (*T, error) {
	if len(t.pkColumns) == 0 {
		return nil, fmt.Errorf("table %s has no primary key", t.name)
	}
	query, args, err := NewQueryBuilder(t.name).Select(t.columns...).Eq(t.pkColumns[0], id).Build()
	if err != nil {
		return nil, err
	}

	var item T
	if err := t.db.QueryRowContext(ctx, query, args...).Scan(t.dest(&item)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get from %s: %w", t.name, err)
	}
	return &item, nil
}

// Select runs b with the table's columns and scans every row.
func (t *Table[T]) Select(ctx context.Context, b *Builder) ([]*T, error) {
	query, args, err := b.withColumns(t.columns).Build()
	if err != nil {
		return nil, err
	}
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", t.name, err)
	}
	defer func() { _ = rows.Close() }()

	var items []*T
	for rows.Next() {
		var item T
		if err := rows.Scan(t.dest(&item)...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// DeleteWhere removes rows where column = value and returns how many were removed.
func (t *Table[T]) DeleteWhere(ctx context.Context, column string, value any) (int64, error) {
	// #nosec G201 - column names are fixed by callers
	res, err := t.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.name, column), value)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", t.name, err)
	}
	return res.RowsAffected()
}

func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Conflict on update") ||
		strings.Contains(msg, "TransactionContext Error") ||
		strings.Contains(msg, "serialization")
}
