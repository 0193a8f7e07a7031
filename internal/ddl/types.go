package ddl

// Kind is the semantic type of a column. Tables produced by the engine only
// ever carry integer or text columns.
type Kind int

const (
	// Text columns hold cleaned strings (or the "-1" sentinel after normalization).
	Text Kind = iota
	// Integer columns hold 64-bit integers (or the -1 sentinel after normalization).
	Integer
)

// String returns the lower-case kind name used in logs and job files.
func (k Kind) String() string {
	if k == Integer {
		return "integer"
	}
	return "text"
}

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - Kind: semantic type mapped to a native SQL type by the dialect
//   - NotNull: whether NULL is rejected
type ColumnDef struct {
	Name    string
	Kind    Kind
	NotNull bool
}

// TableDef holds the table name and an ordered list of columns.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// Names returns the column names of t in declaration order.
func (t TableDef) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
