// Package ddl defines a small, backend-agnostic model for table definitions
// and renders CREATE TABLE statements from it.
//
// The package does not know any SQL dialect. Identifier quoting and the
// mapping from Kind to a native column type are supplied by the caller through
// the Renderer interface, which every storage dialect implements.
package ddl

import (
	"fmt"
	"strings"
)

// Renderer supplies the dialect-specific parts of a CREATE TABLE statement.
type Renderer interface {
	QuoteIdent(name string) string
	ColumnType(k Kind) string
}

// BuildCreateTableSQL renders a CREATE TABLE statement from a TableDef.
//
// Rules:
//
//   - t.Name must be non-empty.
//   - Each column must have a non-empty Name; names must be unique.
//   - A column is rendered as:
//
//     <quoted name> <native type> [NOT NULL]
//
// The resulting statement has the form:
//
//	CREATE TABLE <name> (
//	  <col1-def>,
//	  <col2-def>
//	)
func BuildCreateTableSQL(r Renderer, t TableDef) (string, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	seen := make(map[string]struct{}, len(t.Columns))
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", name)
		}
		if _, dup := seen[c.Name]; dup {
			return "", fmt.Errorf("ddl: duplicate column %q in table %s", c.Name, name)
		}
		seen[c.Name] = struct{}{}

		var sb strings.Builder
		sb.WriteString(r.QuoteIdent(c.Name))
		sb.WriteByte(' ')
		sb.WriteString(r.ColumnType(c.Kind))
		if c.NotNull {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())
	}

	return fmt.Sprintf(
		"CREATE TABLE %s (\n  %s\n)",
		r.QuoteIdent(name),
		strings.Join(cols, ",\n  "),
	), nil
}
