// Package mysql registers the MySQL 8 dialect using go-sql-driver/mysql.
//
// MySQL commits DDL implicitly, so the executor's drop-and-create is not
// atomic on this backend.
package mysql

import (
	"fmt"
	"strings"

	"tableflow/internal/ddl"
	"tableflow/internal/storage"

	_ "github.com/go-sql-driver/mysql"
)

func init() { storage.Register(Dialect{}) }

// Dialect renders MySQL syntax.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string       { return "mysql" }
func (Dialect) DriverName() string { return "mysql" }
func (Dialect) Session() []string  { return nil }

func (Dialect) QuoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

func (Dialect) ColumnType(k ddl.Kind) string {
	if k == ddl.Integer {
		return "BIGINT"
	}
	return "LONGTEXT"
}

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) StringLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (Dialect) RowID() string { return "ROW_NUMBER() OVER ()" }

func (Dialect) AsText(expr string) string {
	return fmt.Sprintf("TRIM(COALESCE(CAST(%s AS CHAR), ''))", expr)
}

func (Dialect) Concat(parts []string) string {
	return "CONCAT(" + strings.Join(parts, ", ") + ")"
}

func (Dialect) AsDate(textExpr string) string {
	norm := fmt.Sprintf("REPLACE(REPLACE(%s, '/', '-'), '.', '-')", textExpr)
	return fmt.Sprintf("(CASE WHEN %s REGEXP '^[0-9]{4}-[0-9]{2}-[0-9]{2}$' THEN CAST(%s AS DATE) END)", norm, norm)
}

func (Dialect) DateParam(ph string) string { return "CAST(" + ph + " AS DATE)" }

// Materialize issues CREATE TABLE ... AS. MySQL commits DDL implicitly, so the
// executor's drop and create are not atomic here: a failed create leaves the
// previous destination dropped.
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
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		u, d.QuoteIdent(name), d.QuoteIdent(table), d.QuoteIdent(column))
}

func (Dialect) Describe(table string) (string, []any) {
	return `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`, []any{table}
}

func (Dialect) Limit(query string, n int) string {
	return fmt.Sprintf("%s LIMIT %d", query, n)
}
