// Package mssql registers the SQL Server dialect using go-mssqldb.
//
// SQL Server has no CREATE TABLE ... AS; plans are materialized with
// SELECT ... INTO after the WITH clause.
package mssql

import (
	"fmt"
	"strconv"
	"strings"

	"tableflow/internal/ddl"
	"tableflow/internal/storage"

	_ "github.com/microsoft/go-mssqldb"
)

func init() { storage.Register(Dialect{}) }

// Dialect renders T-SQL.
type Dialect struct{}

var _ storage.Dialect = Dialect{}

func (Dialect) Name() string       { return "mssql" }
func (Dialect) DriverName() string { return "sqlserver" }
func (Dialect) Session() []string  { return nil }

// QuoteIdent wraps id in brackets, doubling embedded closing brackets.
func (Dialect) QuoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

func (Dialect) ColumnType(k ddl.Kind) string {
	if k == ddl.Integer {
		return "BIGINT"
	}
	return "NVARCHAR(MAX)"
}

func (Dialect) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }

func (Dialect) StringLiteral(s string) string {
	return "N'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (Dialect) RowID() string { return "ROW_NUMBER() OVER (ORDER BY (SELECT NULL))" }

func (Dialect) AsText(expr string) string {
	return fmt.Sprintf("LTRIM(RTRIM(COALESCE(CAST(%s AS NVARCHAR(MAX)), N'')))", expr)
}

func (Dialect) Concat(parts []string) string {
	return "(" + strings.Join(parts, " + ") + ")"
}

func (Dialect) AsDate(textExpr string) string {
	return fmt.Sprintf("TRY_CAST(REPLACE(REPLACE(%s, '/', '-'), '.', '-') AS DATE)", textExpr)
}

func (Dialect) DateParam(ph string) string { return "CAST(" + ph + " AS DATE)" }

func (d Dialect) Materialize(dest, with, selectList, from string) string {
	return fmt.Sprintf("%s SELECT %s INTO %s FROM %s", with, selectList, d.QuoteIdent(dest), from)
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
	return `SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_NAME = @p1
ORDER BY ORDINAL_POSITION`, []any{table}
}

func (Dialect) Limit(query string, n int) string {
	return fmt.Sprintf("%s OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", query, n)
}
