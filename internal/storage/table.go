package storage

import (
	"context"
	"fmt"
)

// OrdinalColumn is the dense 1..N row number assigned at ingestion and copied
// verbatim by every later stage.
const OrdinalColumn = "__ordinal"

// Table is a handle to a named relation in a store.
//
// Several Tables may share one DB. Exactly one of them, the one that opened
// the store, owns it: only the owner's Close releases the connection. Tables
// returned by the normalizer and executor never own their store.
type Table struct {
	db    *DB
	name  string
	owner bool
}

// NewTable returns a handle to name in db. When owner is true, Close closes db.
func NewTable(db *DB, name string, owner bool) *Table {
	return &Table{db: db, name: name, owner: owner}
}

// OpenTable opens a new store and returns an owning handle to name in it.
func OpenTable(ctx context.Context, cfg Config, name string) (*Table, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewTable(db, name, true), nil
}

// Table returns a non-owning handle to name in d.
func (d *DB) Table(name string) *Table { return NewTable(d, name, false) }

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// DB returns the store the table lives in.
func (t *Table) DB() *DB { return t.db }

// Owner reports whether Close releases the store.
func (t *Table) Owner() bool { return t.owner }

// Sibling returns a non-owning handle to another table in the same store.
func (t *Table) Sibling(name string) *Table {
	return NewTable(t.db, name, false)
}

// Columns describes the table's columns in declaration order.
func (t *Table) Columns(ctx context.Context) ([]Column, error) {
	cols, err := t.db.Describe(ctx, t.name)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &StoreError{Op: "describe", Table: t.name, Err: fmt.Errorf("no such table")}
	}
	return cols, nil
}

// ColumnNames is Columns reduced to names.
func (t *Table) ColumnNames(ctx context.Context) ([]string, error) {
	cols, err := t.Columns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out, nil
}

// Count returns the number of rows in the table.
func (t *Table) Count(ctx context.Context) (int64, error) {
	q := "SELECT COUNT(*) FROM " + t.db.dialect.QuoteIdent(t.name)
	var n int64
	if err := t.db.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, storeErr("count", t.name, err)
	}
	return n, nil
}

// CreateIndex indexes column. An empty name selects IndexName(table, column).
func (t *Table) CreateIndex(ctx context.Context, column string, unique bool, name string) (string, error) {
	return t.db.CreateIndex(ctx, t.name, column, unique, name)
}

// Stream runs an ad hoc query against the table's store. Use Select to
// build a query over this table in the store's syntax.
func (t *Table) Stream(ctx context.Context, query string, args []any, fn RowFunc) error {
	return t.db.Stream(ctx, query, args, fn)
}

// Select renders "SELECT <cols> FROM <table> ORDER BY <ordinal>" for the
// table's dialect. No columns selects every column.
func (t *Table) Select(cols ...string) string {
	d := t.db.dialect
	list := "*"
	if len(cols) > 0 {
		list = ""
		for i, c := range cols {
			if i > 0 {
				list += ", "
			}
			list += d.QuoteIdent(c)
		}
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		list, d.QuoteIdent(t.name), d.QuoteIdent(OrdinalColumn))
}

// Drop removes the table from the store.
func (t *Table) Drop(ctx context.Context) error {
	return t.db.DropTable(ctx, t.name)
}

// Close releases the store if this handle owns it; otherwise it is a no-op.
func (t *Table) Close() error {
	if !t.owner {
		return nil
	}
	return t.db.Close()
}
