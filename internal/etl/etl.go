// Package etl runs a whole job: load the source file, optionally normalize
// it, then materialize every configured pipeline in order. Each pipeline
// writes a table named after it, so later pipelines can read earlier ones.
package etl

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tableflow/internal/config"
	"tableflow/internal/executor"
	"tableflow/internal/loader"
	"tableflow/internal/normalize"
	"tableflow/internal/plan"
	"tableflow/internal/probe"
	"tableflow/internal/progress"
	"tableflow/internal/storage"
)

// Options carry run-wide settings that are not part of the job file.
type Options struct {
	// RunID tags log lines; empty generates a random one.
	RunID    string
	Progress progress.Reporter
}

// TableReport describes one materialized pipeline.
type TableReport struct {
	Name    string
	From    string
	Rows    int64
	Columns []string
	Elapsed time.Duration
}

// Report summarizes a run.
type Report struct {
	RunID     string
	Load      loader.Result
	Normalize *normalize.Result
	Tables    []TableReport
	Elapsed   time.Duration
}

// Run executes j against the store it names. The store is opened and closed
// by Run.
func Run(ctx context.Context, j config.Job, opt Options) (rep Report, err error) {
	start := time.Now()
	rep.RunID = opt.RunID
	if rep.RunID == "" {
		rep.RunID = uuid.NewString()
	}
	if opt.Progress == nil {
		opt.Progress = progress.Log{}
	}
	if issues := config.ValidateJob(j); config.HasErrors(issues) {
		return rep, fmt.Errorf("etl: invalid job: %w", firstError(issues))
	}
	job := j.Name
	if job == "" {
		job = "tableflow"
	}

	delim, err := probe.ParseDelimiter(j.Source.Delimiter)
	if err != nil {
		return rep, err
	}

	log.Printf("etl: run_id=%s job=%s store=%s source=%s pipelines=%d",
		rep.RunID, job, storeKind(j.Store), j.Source.Path, len(j.Pipelines))

	raw, err := storage.OpenTable(ctx, storage.Config{Kind: j.Store.Kind, DSN: j.Store.DSN}, j.Source.RawTable())
	if err != nil {
		return rep, err
	}
	defer func() {
		if cerr := raw.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	rep.Load, err = loader.Load(ctx, raw.DB(), j.Source.Path, raw.Name(), loader.Options{
		Columns:       j.Source.Columns,
		Delimiter:     delim,
		Encoding:      j.Source.Encoding,
		BatchSize:     j.Runtime.BatchSize,
		ProgressEvery: j.Runtime.ProgressEvery,
		Progress:      opt.Progress,
		Job:           job,
	})
	if err != nil {
		return rep, err
	}

	current := raw
	tables := map[string]*storage.Table{raw.Name(): raw}
	if j.Normalize != nil {
		rules := j.NormalizeRules()
		norm, res, err := normalize.Normalize(ctx, raw, normalize.Options{
			Dest:          j.NormalizedTable(),
			Rules:         &rules,
			PageSize:      j.Runtime.PageSize,
			ProgressEvery: j.Runtime.ProgressEvery,
			Progress:      opt.Progress,
			Job:           job,
		})
		if err != nil {
			return rep, err
		}
		rep.Normalize = &res
		tables[norm.Name()] = norm
		current = norm
	}

	for _, p := range j.Pipelines {
		src := current
		if p.From != "" {
			src = tables[p.From]
		}
		pl, err := p.Build()
		if err != nil {
			return rep, err
		}
		stepStart := time.Now()
		out, err := executor.Apply(ctx, src, pl, p.Name, p.Output, executor.Options{Job: job, Step: p.Name})
		if err != nil {
			return rep, fmt.Errorf("etl: pipeline %q: %w", p.Name, err)
		}
		n, err := out.Count(ctx)
		if err != nil {
			return rep, err
		}
		cols, err := out.ColumnNames(ctx)
		if err != nil {
			return rep, err
		}
		tables[out.Name()] = out
		rep.Tables = append(rep.Tables, TableReport{
			Name: out.Name(), From: src.Name(), Rows: n, Columns: cols, Elapsed: time.Since(stepStart),
		})
	}

	rep.Elapsed = time.Since(start)
	log.Printf("etl: done run_id=%s loaded=%d bad=%d tables=%d elapsed=%s",
		rep.RunID, rep.Load.Rows, rep.Load.Bad, len(rep.Tables), rep.Elapsed.Truncate(time.Millisecond))
	return rep, nil
}

// PlanView is a pipeline compiled without touching the store.
type PlanView struct {
	Name  string
	From  string
	Plan  *plan.Plan
	Query plan.Query
}

// Plans compiles every pipeline of j for dialect d. Source columns are not
// known before the load, so only static checks apply.
func Plans(j config.Job, d storage.Dialect) ([]PlanView, error) {
	from := j.Source.RawTable()
	if t := j.NormalizedTable(); t != "" {
		from = t
	}
	var out []PlanView
	for _, p := range j.Pipelines {
		src := from
		if p.From != "" {
			src = p.From
		}
		pl, err := p.Build()
		if err != nil {
			return nil, err
		}
		compiled, err := plan.Compile(pl, plan.Options{Source: src, Output: p.Output})
		if err != nil {
			return nil, fmt.Errorf("etl: pipeline %q: %w", p.Name, err)
		}
		q, err := compiled.Render(d)
		if err != nil {
			return nil, err
		}
		out = append(out, PlanView{Name: p.Name, From: src, Plan: compiled, Query: q})
	}
	return out, nil
}

func firstError(issues []config.Issue) error {
	for _, i := range issues {
		if i.Severity == config.SeverityError {
			return i
		}
	}
	return nil
}

func storeKind(s config.Store) string {
	if s.Kind == "" {
		return storage.DefaultKind
	}
	return s.Kind
}
