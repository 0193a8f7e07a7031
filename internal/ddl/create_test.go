package ddl

import (
	"strings"
	"testing"
)

// plainRenderer quotes with double quotes and maps kinds to SQLite-like names.
type plainRenderer struct{}

func (plainRenderer) QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (plainRenderer) ColumnType(k Kind) string {
	if k == Integer {
		return "INTEGER"
	}
	return "TEXT"
}

// TestBuildCreateTableSQL verifies rendered statements and the errors surfaced
// for invalid definitions.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		def         TableDef
		wantSQL     string
		errContains string
	}{
		{
			name:        "empty name returns error",
			def:         TableDef{Columns: []ColumnDef{{Name: "id"}}},
			errContains: "table name must not be empty",
		},
		{
			name:        "no columns returns error",
			def:         TableDef{Name: "t"},
			errContains: "at least one column is required",
		},
		{
			name:        "blank column name returns error",
			def:         TableDef{Name: "t", Columns: []ColumnDef{{Name: "  "}}},
			errContains: "column with empty name",
		},
		{
			name: "duplicate column returns error",
			def: TableDef{Name: "t", Columns: []ColumnDef{
				{Name: "a"}, {Name: "a", Kind: Integer},
			}},
			errContains: `duplicate column "a"`,
		},
		{
			name: "ordinal plus text columns",
			def: TableDef{Name: "raw", Columns: []ColumnDef{
				{Name: "__ordinal", Kind: Integer},
				{Name: "3G"},
				{Name: `we"ird`},
			}},
			wantSQL: "CREATE TABLE \"raw\" (\n  \"__ordinal\" INTEGER,\n  \"3G\" TEXT,\n  \"we\"\"ird\" TEXT\n)",
		},
		{
			name: "not null is rendered",
			def: TableDef{Name: "t", Columns: []ColumnDef{
				{Name: "id", Kind: Integer, NotNull: true},
			}},
			wantSQL: "CREATE TABLE \"t\" (\n  \"id\" INTEGER NOT NULL\n)",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := BuildCreateTableSQL(plainRenderer{}, tt.def)
			if tt.errContains != "" {
				if err == nil {
					t.Fatalf("BuildCreateTableSQL() error = nil, want %q", tt.errContains)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("BuildCreateTableSQL() error = %q, want substring %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildCreateTableSQL() unexpected error = %v", err)
			}
			if got != tt.wantSQL {
				t.Fatalf("BuildCreateTableSQL() =\n%s\nwant:\n%s", got, tt.wantSQL)
			}
		})
	}
}

func TestTableDefNames(t *testing.T) {
	t.Parallel()

	def := TableDef{Name: "t", Columns: []ColumnDef{{Name: "a"}, {Name: "b", Kind: Integer}}}
	got := strings.Join(def.Names(), ",")
	if got != "a,b" {
		t.Fatalf("Names() = %q, want %q", got, "a,b")
	}
	if Integer.String() != "integer" || Text.String() != "text" {
		t.Fatalf("Kind.String mismatch: %q %q", Integer, Text)
	}
}
