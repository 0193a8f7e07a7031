// Package sqlite registers the SQLite dialect, the engine's primary store.
//
// It uses the pure-Go modernc.org/sqlite driver so binaries stay cgo-free.
// Importing this package (directly or via internal/storage/all) makes
// storage kind "sqlite" available to storage.Open.
package sqlite

import (
	"fmt"
	"strings"

	"tableflow/internal/ddl"
	"tableflow/internal/storage"

	_ "modernc.org/sqlite"
)

func init() { storage.Register(Dialect{}) }

// Dialect renders SQLite syntax.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string       { return "sqlite" }
func (Dialect) DriverName() string { return "sqlite" }

// Session applies the bulk-load pragmas: WAL journal, relaxed fsync, in-memory
// temp storage for sorts and window partitions.
func (Dialect) Session() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
}

// QuoteIdent wraps id in double quotes, doubling embedded quotes.
func (Dialect) QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func (Dialect) ColumnType(k ddl.Kind) string {
	if k == ddl.Integer {
		return "INTEGER"
	}
	return "TEXT"
}

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) StringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (Dialect) RowID() string { return "rowid" }

func (Dialect) AsText(expr string) string {
	return fmt.Sprintf("TRIM(COALESCE(CAST(%s AS TEXT), ''))", expr)
}

func (Dialect) Concat(parts []string) string {
	return "(" + strings.Join(parts, " || ") + ")"
}

// AsDate maps "/" and "." separators to "-" and lets DATE() reject the rest.
func (Dialect) AsDate(textExpr string) string {
	return fmt.Sprintf("DATE(REPLACE(REPLACE(%s, '/', '-'), '.', '-'))", textExpr)
}

func (Dialect) DateParam(ph string) string { return "DATE(" + ph + ")" }

func (d Dialect) Materialize(dest, with, selectList, from string) string {
	return fmt.Sprintf("CREATE TABLE %s AS %s SELECT %s FROM %s", d.QuoteIdent(dest), with, selectList, from)
}

func (d Dialect) DropTableIfExists(table string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(table)
}

func (d Dialect) CreateIndex(name, table, column string, unique bool) string {
	u := ""
	if unique {
		u = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		u, d.QuoteIdent(name), d.QuoteIdent(table), d.QuoteIdent(column))
}

func (Dialect) Describe(table string) (string, []any) {
	return "SELECT name, type FROM pragma_table_info(?) ORDER BY cid", []any{table}
}

func (Dialect) Limit(query string, n int) string {
	return fmt.Sprintf("%s LIMIT %d", query, n)
}
