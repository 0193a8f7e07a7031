// Package tableflow is the public surface of the engine: open a delimited
// file as a table, normalize it, and materialize declarative pipelines over
// it. Analysis and report code outside this module should only need this
// package.
//
//	t, _, err := tableflow.OpenFile(ctx, "declarations.csv", tableflow.OpenOptions{})
//	if err != nil { ... }
//	defer t.Close()
//	norm, _, err := tableflow.Normalize(ctx, t, tableflow.NormalizeOptions{})
//	out, err := tableflow.Apply(ctx, norm, tableflow.NewPipeline().
//		Where("3G", 1).
//		DedupBy("PUBL_NUMBER"), "essential", "PUBL_NUMBER")
package tableflow

import (
	"context"
	"fmt"

	"tableflow/internal/executor"
	"tableflow/internal/loader"
	"tableflow/internal/normalize"
	"tableflow/internal/pipeline"
	"tableflow/internal/plan"
	"tableflow/internal/probe"
	"tableflow/internal/storage"
	_ "tableflow/internal/storage/all"
)

// Re-exported types so callers do not import internal packages.
type (
	Table            = storage.Table
	Column           = storage.Column
	StoreConfig      = storage.Config
	RowFunc          = storage.RowFunc
	Pipeline         = pipeline.Pipeline
	Equals           = pipeline.Equals
	Rules            = normalize.Rules
	Plan             = plan.Plan
	Format           = probe.Format
	LoadResult       = loader.Result
	NormalizeResult  = normalize.Result
	NormalizeOptions = normalize.Options
)

// OrdinalColumn is the 1-based source row number carried by every table.
const OrdinalColumn = storage.OrdinalColumn

// MemoryStore is the store OpenFile uses when none is configured.
var MemoryStore = StoreConfig{Kind: "sqlite", DSN: ":memory:"}

// OpenOptions configure OpenFile.
type OpenOptions struct {
	// Store defaults to MemoryStore.
	Store StoreConfig
	// Table defaults to "raw".
	Table string
	// Columns restricts the load to these header names.
	Columns []string
	// Delimiter and Encoding skip sniffing when both are set.
	Delimiter rune
	Encoding  string
	BatchSize int
}

// OpenFile opens a store and loads path into it. The returned table owns the
// store; closing it releases every table derived from it.
func OpenFile(ctx context.Context, path string, opt OpenOptions) (*Table, LoadResult, error) {
	cfg := opt.Store
	if cfg.DSN == "" {
		cfg = MemoryStore
	}
	name := opt.Table
	if name == "" {
		name = "raw"
	}
	t, err := storage.OpenTable(ctx, cfg, name)
	if err != nil {
		return nil, LoadResult{}, err
	}
	res, err := loader.Load(ctx, t.DB(), path, name, loader.Options{
		Columns:   opt.Columns,
		Delimiter: opt.Delimiter,
		Encoding:  opt.Encoding,
		BatchSize: opt.BatchSize,
	})
	if err != nil {
		_ = t.Close()
		return nil, res, err
	}
	return t, res, nil
}

// Open returns an owning handle to an existing table.
func Open(ctx context.Context, cfg StoreConfig, table string) (*Table, error) {
	t, err := storage.OpenTable(ctx, cfg, table)
	if err != nil {
		return nil, err
	}
	if ok, err := t.DB().Exists(ctx, table); err != nil || !ok {
		_ = t.Close()
		if err == nil {
			err = fmt.Errorf("tableflow: table %q does not exist", table)
		}
		return nil, err
	}
	return t, nil
}

// Sniff guesses the delimiter and encoding of path.
func Sniff(ctx context.Context, path string) (Format, error) {
	return probe.Sniff(ctx, path, probe.SniffOptions{})
}

// DefaultRules returns the built-in normalization rules.
func DefaultRules() Rules { return normalize.DefaultRules() }

// Normalize writes a normalized copy of src into the same store.
func Normalize(ctx context.Context, src *Table, opt NormalizeOptions) (*Table, NormalizeResult, error) {
	return normalize.Normalize(ctx, src, opt)
}

// NewPipeline starts an empty pipeline.
func NewPipeline() Pipeline { return pipeline.New() }

// Compile validates p against src's columns without running it.
func Compile(ctx context.Context, src *Table, p Pipeline, output ...string) (*Plan, error) {
	cols, err := src.ColumnNames(ctx)
	if err != nil {
		return nil, err
	}
	return plan.Compile(p, plan.Options{Source: src.Name(), SourceColumns: cols, Output: output})
}

// Apply compiles p against src and materializes it as dest. An empty dest
// derives a name from the source and the compiled query. No output columns
// keeps every column.
func Apply(ctx context.Context, src *Table, p Pipeline, dest string, output ...string) (*Table, error) {
	return executor.Apply(ctx, src, p, dest, output, executor.Options{Step: dest})
}

// CreateIndex indexes column of t under the default index name.
func CreateIndex(ctx context.Context, t *Table, column string, unique bool) (string, error) {
	return t.CreateIndex(ctx, column, unique, "")
}

// Columns lists the column names of t.
func Columns(ctx context.Context, t *Table) ([]string, error) {
	return t.ColumnNames(ctx)
}

// Stream runs query against t's store and calls fn per row.
func Stream(ctx context.Context, t *Table, query string, args []any, fn RowFunc) error {
	return t.Stream(ctx, query, args, fn)
}

// Close releases t's store when t owns it.
func Close(t *Table) error { return t.Close() }
