// Package executor materializes compiled plans.
//
// Execute runs a plan's composed query exactly once and stores the result as
// a new table: the destination is dropped and recreated inside one
// transaction, so a failure leaves no partially written table behind. The
// source table is never modified, and the returned handle shares the
// source's store without owning it.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"tableflow/internal/metrics"
	"tableflow/internal/pipeline"
	"tableflow/internal/plan"
	"tableflow/internal/storage"
)

// StepSuffix prefixes the fingerprint in default destination names.
const StepSuffix = "__step_"

// Options tune an execution.
type Options struct {
	// Job and Step label metrics and logs.
	Job  string
	Step string
	// SkipIndex disables the ordinal index on the destination.
	SkipIndex bool
}

// Execute runs p against src and writes the result into dest. An empty dest
// selects "<source>__step_<fingerprint>".
func Execute(ctx context.Context, src *storage.Table, p *plan.Plan, dest string, opt Options) (_ *storage.Table, err error) {
	start := time.Now()
	if opt.Job == "" {
		opt.Job = "tableflow"
	}
	if opt.Step == "" {
		opt.Step = "execute"
	}
	defer func() { metrics.RecordStep(opt.Job, opt.Step, err, time.Since(start)) }()

	if p.Source() != src.Name() {
		return nil, fmt.Errorf("executor: plan compiled for %q cannot run on %q", p.Source(), src.Name())
	}
	db := src.DB()
	d := db.Dialect()
	if dest == "" {
		fp, err := p.Fingerprint(d)
		if err != nil {
			return nil, err
		}
		dest = src.Name() + StepSuffix + fp
	}
	if dest == src.Name() {
		return nil, fmt.Errorf("executor: destination %q is the source table", dest)
	}

	q, err := p.Render(d)
	if err != nil {
		return nil, err
	}
	if err := p.Claim(); err != nil {
		return nil, err
	}
	stmt := d.Materialize(dest, q.With, q.Select, q.From)

	err = db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, d.DropTableIfExists(dest)); err != nil {
			return &storage.StoreError{Op: "drop", Table: dest, Err: err}
		}
		if _, err := tx.ExecContext(ctx, stmt, q.Args...); err != nil {
			return &storage.StoreError{Op: "materialize", Table: dest, Err: err}
		}
		return nil
	})
	if err != nil {
		log.Printf("executor: failed step=%s from=%s to=%s err=%v", opt.Step, src.Name(), dest, err)
		return nil, err
	}

	out := src.Sibling(dest)
	if !opt.SkipIndex {
		if _, err := out.CreateIndex(ctx, storage.OrdinalColumn, false, ""); err != nil {
			return nil, err
		}
	}
	n, err := out.Count(ctx)
	if err != nil {
		return nil, err
	}
	metrics.RecordRows(opt.Job, "materialized", n)
	log.Printf("executor: step=%s from=%s to=%s rows=%d elapsed=%s",
		opt.Step, src.Name(), dest, n, time.Since(start).Truncate(time.Millisecond))
	return out, nil
}

// Apply describes src, compiles pl against its columns and executes it.
// output selects the final columns; none keeps every column.
func Apply(ctx context.Context, src *storage.Table, pl pipeline.Pipeline, dest string, output []string, opt Options) (*storage.Table, error) {
	cols, err := src.ColumnNames(ctx)
	if err != nil {
		return nil, err
	}
	p, err := plan.Compile(pl, plan.Options{Source: src.Name(), Output: output, SourceColumns: cols})
	if err != nil {
		return nil, err
	}
	return Execute(ctx, src, p, dest, opt)
}
