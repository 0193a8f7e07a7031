package storage_test

import (
	"errors"
	"strings"
	"testing"

	"tableflow/internal/ddl"
	"tableflow/internal/storage"
	_ "tableflow/internal/storage/all"
)

// TestRegisteredDialects checks that every built-in backend registered
// itself and renders the pieces the compiler and loader rely on.
func TestRegisteredDialects(t *testing.T) {
	t.Parallel()

	want := "mssql,mysql,postgres,sqlite"
	if got := strings.Join(storage.Kinds(), ","); got != want {
		t.Fatalf("Kinds() = %q, want %q", got, want)
	}

	tests := []struct {
		kind      string
		quoted    string
		ph2       string
		intType   string
		literal   string
		matPrefix string
	}{
		{"sqlite", `"a""b"`, "?", "INTEGER", `'it''s'`, `CREATE TABLE "d" AS WITH`},
		{"postgres", `"a""b"`, "$2", "BIGINT", `'it''s'`, `CREATE TABLE "d" AS WITH`},
		{"mssql", "[a\"b]", "@p2", "BIGINT", `N'it''s'`, `WITH`},
		{"mysql", "`a\"b`", "?", "BIGINT", `'it''s'`, "CREATE TABLE `d` AS WITH"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.kind, func(t *testing.T) {
			t.Parallel()

			d, err := storage.Lookup(tt.kind)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if got := d.QuoteIdent(`a"b`); got != tt.quoted {
				t.Errorf("QuoteIdent = %s, want %s", got, tt.quoted)
			}
			if got := d.Placeholder(2); got != tt.ph2 {
				t.Errorf("Placeholder(2) = %s, want %s", got, tt.ph2)
			}
			if got := d.ColumnType(ddl.Integer); got != tt.intType {
				t.Errorf("ColumnType(Integer) = %s, want %s", got, tt.intType)
			}
			if got := d.StringLiteral("it's"); got != tt.literal {
				t.Errorf("StringLiteral = %s, want %s", got, tt.literal)
			}
			mat := d.Materialize("d", "WITH base AS (SELECT 1)", "*", "base")
			if !strings.HasPrefix(mat, tt.matPrefix) {
				t.Errorf("Materialize = %s, want prefix %s", mat, tt.matPrefix)
			}
			if !strings.Contains(d.AsDate("x"), "'/'") {
				t.Errorf("AsDate does not normalize '/': %s", d.AsDate("x"))
			}
		})
	}
}

func TestMSSQLMaterializesWithSelectInto(t *testing.T) {
	t.Parallel()

	d, err := storage.Lookup("mssql")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	got := d.Materialize("out", "WITH base AS (SELECT 1 AS x)", "[x]", "base")
	want := "WITH base AS (SELECT 1 AS x) SELECT [x] INTO [out] FROM base"
	if got != want {
		t.Fatalf("Materialize =\n%s\nwant\n%s", got, want)
	}
	if got := d.Limit("SELECT 1 ORDER BY 1", 10); !strings.HasSuffix(got, "FETCH NEXT 10 ROWS ONLY") {
		t.Fatalf("Limit = %s", got)
	}
}

func TestStoreErrorUnwraps(t *testing.T) {
	t.Parallel()

	base := errors.New("disk full")
	err := &storage.StoreError{Op: "create", Table: "t", Err: base}
	if !errors.Is(err, base) {
		t.Fatalf("errors.Is(StoreError, base) = false")
	}
	if !strings.Contains(err.Error(), "storage: create t:") {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !storage.IsStoreError(err) {
		t.Fatalf("IsStoreError = false")
	}
}
