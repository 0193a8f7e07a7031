// Package postgres registers the PostgreSQL dialect using pgx's database/sql
// driver.
package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"tableflow/internal/ddl"
	"tableflow/internal/storage"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func init() { storage.Register(Dialect{}) }

// Dialect renders PostgreSQL syntax.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

// isoDate guards CAST(... AS DATE), which raises instead of returning NULL.
const isoDate = `'^[0-9]{4}-[0-9]{2}-[0-9]{2}$'`

func (Dialect) Name() string       { return "postgres" }
func (Dialect) DriverName() string { return "pgx" }
func (Dialect) Session() []string  { return nil }

func (Dialect) QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func (Dialect) ColumnType(k ddl.Kind) string {
	if k == ddl.Integer {
		return "BIGINT"
	}
	return "TEXT"
}

func (Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Dialect) StringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (Dialect) RowID() string { return "ROW_NUMBER() OVER ()" }

func (Dialect) AsText(expr string) string {
	return fmt.Sprintf("TRIM(COALESCE(CAST(%s AS TEXT), ''))", expr)
}

func (Dialect) Concat(parts []string) string {
	return "(" + strings.Join(parts, " || ") + ")"
}

func (Dialect) AsDate(textExpr string) string {
	norm := fmt.Sprintf("REPLACE(REPLACE(%s, '/', '-'), '.', '-')", textExpr)
	return fmt.Sprintf("(CASE WHEN %s ~ %s THEN CAST(%s AS DATE) END)", norm, isoDate, norm)
}

func (Dialect) DateParam(ph string) string { return "CAST(" + ph + " AS DATE)" }

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
	return `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`, []any{table}
}

func (Dialect) Limit(query string, n int) string {
	return fmt.Sprintf("%s LIMIT %d", query, n)
}
