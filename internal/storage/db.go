// Package storage is the backing-store boundary of the engine. It owns the
// single database/sql connection, the registry of SQL dialects, and the
// Table handles shared by the loader, normalizer and executor.
//
// A store is a single-writer embedded engine from the engine's point of view:
// every DB keeps exactly one open connection, and exactly one Table (the one
// that opened the store) is responsible for closing it.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"tableflow/internal/ddl"
)

// DefaultKind is used when Config.Kind is empty.
const DefaultKind = "sqlite"

// Config selects a backend and its connection string.
type Config struct {
	// Kind is a registered dialect name ("sqlite", "postgres", "mssql", "mysql").
	Kind string
	// DSN is passed to the driver verbatim, e.g. "work.db", ":memory:",
	// "postgres://user:pw@host/db", "sqlserver://...".
	DSN string
}

// DB is an open store: one database/sql handle pinned to one connection plus
// the dialect used to talk to it.
type DB struct {
	db      *sql.DB
	dialect Dialect

	closeOnce sync.Once
	closeErr  error
}

// Open connects to the store described by cfg.
//
// The pool is limited to a single connection so that in-memory SQLite
// databases survive between calls and writes are serialized. Open fails fast
// with a 5s ping and then runs the dialect's session statements (pragmas).
func Open(ctx context.Context, cfg Config) (*DB, error) {
	kind := strings.TrimSpace(cfg.Kind)
	if kind == "" {
		kind = DefaultKind
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("storage: %s: DSN must not be empty", kind)
	}
	d, err := Lookup(kind)
	if err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, storeErr("open", "", err)
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqldb.PingContext(pingCtx); err != nil {
		_ = sqldb.Close()
		return nil, storeErr("ping", "", err)
	}

	for _, stmt := range d.Session() {
		if _, err := sqldb.ExecContext(ctx, stmt); err != nil {
			_ = sqldb.Close()
			return nil, storeErr("session "+stmt, "", err)
		}
	}

	return &DB{db: sqldb, dialect: d}, nil
}

// Dialect returns the dialect the store was opened with.
func (d *DB) Dialect() Dialect { return d.dialect }

// SQL exposes the underlying handle for callers that need raw access.
func (d *DB) SQL() *sql.DB { return d.db }

// Close closes the connection. Calling Close more than once is safe.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.db.Close()
	})
	return d.closeErr
}

// Exec executes a single statement outside of an explicit transaction.
func (d *DB) Exec(ctx context.Context, query string, args ...any) error {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return storeErr("exec", "", err)
	}
	return nil
}

// InTx runs fn inside one transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func (d *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", "", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit", "", err)
	}
	return nil
}

// Column is one entry of a table description.
type Column struct {
	Name string
	// Type is the declared type as reported by the store (may be empty for
	// SQLite expression columns).
	Type string
}

// Kind maps the declared type onto the engine's two semantic kinds.
func (c Column) Kind() ddl.Kind {
	if strings.Contains(strings.ToUpper(c.Type), "INT") {
		return ddl.Integer
	}
	return ddl.Text
}

// Describe lists the columns of table in declaration order. A table that does
// not exist yields an empty slice.
func (d *DB) Describe(ctx context.Context, table string) ([]Column, error) {
	q, args := d.dialect.Describe(table)
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("describe", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var name string
		var typ sql.NullString
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, storeErr("describe", table, err)
		}
		cols = append(cols, Column{Name: name, Type: typ.String})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("describe", table, err)
	}
	return cols, nil
}

// Exists reports whether table is present in the store.
func (d *DB) Exists(ctx context.Context, table string) (bool, error) {
	cols, err := d.Describe(ctx, table)
	if err != nil {
		return false, err
	}
	return len(cols) > 0, nil
}

// DropTable removes table if it exists.
func (d *DB) DropTable(ctx context.Context, table string) error {
	if _, err := d.db.ExecContext(ctx, d.dialect.DropTableIfExists(table)); err != nil {
		return storeErr("drop", table, err)
	}
	return nil
}

// ReplaceTable drops any table named def.Name and creates it from def.
func (d *DB) ReplaceTable(ctx context.Context, def ddl.TableDef) error {
	stmt, err := ddl.BuildCreateTableSQL(d.dialect, def)
	if err != nil {
		return err
	}
	return d.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, d.dialect.DropTableIfExists(def.Name)); err != nil {
			return storeErr("drop", def.Name, err)
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return storeErr("create", def.Name, err)
		}
		return nil
	})
}

// IndexName is the default name for an index on table(column).
func IndexName(table, column string) string {
	return "idx__" + table + "__" + column
}

// CreateIndex creates an index on table(column). An empty name selects
// IndexName(table, column). It returns the index name used.
func (d *DB) CreateIndex(ctx context.Context, table, column string, unique bool, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		name = IndexName(table, column)
	}
	stmt := d.dialect.CreateIndex(name, table, column, unique)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return "", storeErr("create index "+name, table, err)
	}
	log.Printf("storage: index=%s table=%s column=%s unique=%t", name, table, column, unique)
	return name, nil
}

// InsertSQL renders a single-row INSERT for table and columns.
func (d *DB) InsertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	ph := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.dialect.QuoteIdent(c)
		ph[i] = d.dialect.Placeholder(i + 1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		d.dialect.QuoteIdent(table),
		strings.Join(quoted, ", "),
		strings.Join(ph, ", "),
	)
}

// CopyFrom inserts rows into table using a single transaction and a prepared
// INSERT statement. len(row) must equal len(columns) for every row.
func (d *DB) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("storage: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var inserted int64
	err := d.InTx(ctx, func(tx *sql.Tx) error {
		n, err := CopyTx(ctx, tx, d.InsertSQL(table, columns), len(columns), rows)
		inserted = n
		if err != nil {
			return storeErr("insert", table, err)
		}
		return nil
	})
	return inserted, err
}

// CopyTx runs a prepared insert for every row inside an existing transaction.
func CopyTx(ctx context.Context, tx *sql.Tx, insertSQL string, width int, rows [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != width {
			return inserted, fmt.Errorf("row length %d != columns length %d", len(row), width)
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// RowFunc receives one result row. vals is reused between calls; copy it to
// retain values. Text values arrive as string, never []byte.
type RowFunc func(cols []string, vals []any) error

// Stream runs query and calls fn for each row, stopping at the first error.
func (d *DB) Stream(ctx context.Context, query string, args []any, fn RowFunc) error {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return storeErr("query", "", err)
	}
	defer rows.Close()
	return ScanRows(rows, fn)
}

// ScanRows drains rows into fn. It is shared by Stream and by callers that
// query inside their own transaction.
func ScanRows(rows *sql.Rows, fn RowFunc) error {
	cols, err := rows.Columns()
	if err != nil {
		return storeErr("columns", "", err)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return storeErr("scan", "", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		if err := fn(cols, vals); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storeErr("rows", "", err)
	}
	return nil
}
