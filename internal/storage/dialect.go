package storage

import (
	"fmt"
	"sort"
	"sync"

	"tableflow/internal/ddl"
)

// Dialect is the store-native syntax boundary. The plan compiler builds a
// syntax-free intermediate representation and asks a Dialect to serialize it;
// loaders and the normalizer use it for DDL, inserts and schema introspection.
//
// Backends (sqlite, postgres, mssql, mysql) register their Dialect at init
// time; see internal/storage/all.
type Dialect interface {
	ddl.Renderer

	// Name is the storage kind used in configs and on the command line.
	Name() string
	// DriverName is the database/sql driver name to open.
	DriverName() string
	// Session returns statements executed once after the connection opens.
	Session() []string

	// Placeholder renders the n-th (1-based) positional parameter.
	Placeholder(n int) string
	// StringLiteral renders s as a quoted SQL string literal.
	StringLiteral(s string) string

	// RowID is the expression producing a per-execution positional row
	// identifier in the base sub-query.
	RowID() string
	// AsText casts expr to trimmed text, treating NULL as the empty string.
	AsText(expr string) string
	// Concat joins already-rendered text expressions.
	Concat(parts []string) string
	// AsDate converts a text expression to a date, or NULL if it does not parse.
	AsDate(textExpr string) string
	// DateParam converts a bound parameter to a date.
	DateParam(placeholder string) string

	// Materialize renders the statement that creates dest from a composed query
	// made of a WITH clause, a select list and the final relation.
	Materialize(dest, with, selectList, from string) string
	// DropTableIfExists renders a DROP TABLE that tolerates absence.
	DropTableIfExists(table string) string
	// CreateIndex renders an index on a single column.
	CreateIndex(name, table, column string, unique bool) string
	// Describe returns a query listing (name, type) of table's columns in
	// declaration order, with its arguments.
	Describe(table string) (string, []any)
	// Limit appends a row limit to an ordered query.
	Limit(query string, n int) string
}

var (
	dialectsMu sync.RWMutex
	dialects   = map[string]Dialect{}
)

// Register makes a Dialect available to Open under d.Name(). It is typically
// called from backend packages' init() functions; a later registration for
// the same name replaces the earlier one.
func Register(d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[d.Name()] = d
}

// Lookup returns the Dialect registered for kind.
func Lookup(kind string) (Dialect, error) {
	dialectsMu.RLock()
	d, ok := dialects[kind]
	dialectsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no dialect registered for kind %q (have %v)", kind, Kinds())
	}
	return d, nil
}

// Kinds lists registered storage kinds in sorted order.
func Kinds() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	out := make([]string, 0, len(dialects))
	for k := range dialects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
