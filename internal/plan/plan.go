// Package plan compiles a pipeline.Pipeline into a single composed query.
//
// Compilation happens in two phases. Compile walks the operations once to
// infer which source columns must be read (projection pushdown) and which
// are derived, validates every referenced and requested column, and records
// an intermediate representation: an ordered list of named stages, each
// reading from the one before it. Render serializes that representation for
// one storage.Dialect as WITH base AS (...), s1 AS (...), ... SELECT ... FROM sN.
// Nothing in this package depends on a concrete store syntax until Render.
package plan

import (
	"fmt"
	"strings"
	"sync/atomic"

	"tableflow/internal/normalize"
	"tableflow/internal/pipeline"
	"tableflow/internal/storage"
)

// Internal column names emitted by the compiler.
const (
	// RowIDColumn is the per-execution positional identifier used as the
	// second tie-break after the ordinal.
	RowIDColumn = "__rid"
	// RankColumn is the window rank computed by deduplication. It never
	// appears in a stage's visible columns.
	RankColumn = "__rn"

	baseStage = "base"
)

// Options control compilation.
type Options struct {
	// Output selects the final columns in order. Empty selects every visible
	// column, including RowIDColumn, and disables projection pushdown.
	Output []string
	// Source names the table the plan reads.
	Source string
	// SourceColumns, when known, lets the compiler validate source columns
	// at build time and replace "*" with an explicit list.
	SourceColumns []string
}

// Stage is one named sub-query of the intermediate representation.
type Stage struct {
	Name string
	From string
	// Op is nil for the base stage.
	Op pipeline.Operation
	// Columns are the stage's visible columns; nil when they are not known
	// statically (select-all over an undescribed source).
	Columns []string
}

// Plan is a compiled, read-only pipeline bound to one source table.
// A Plan may be rendered any number of times but executed once; see Claim.
type Plan struct {
	source    string
	selectAll bool
	baseCols  []string // nil means "s.*"
	stages    []Stage
	required  []string
	derived   []string
	output    []string
	ops       []pipeline.Operation

	used atomic.Bool
}

// Compile analyzes p and builds a Plan reading from opt.Source.
func Compile(p pipeline.Pipeline, opt Options) (*Plan, error) {
	if strings.TrimSpace(opt.Source) == "" {
		return nil, fmt.Errorf("plan: source table must not be empty")
	}
	ops := p.Ops()
	if err := checkOps(ops); err != nil {
		return nil, err
	}

	pl := &Plan{
		source:    opt.Source,
		selectAll: len(opt.Output) == 0,
		ops:       ops,
	}

	var srcSet map[string]bool
	if opt.SourceColumns != nil {
		srcSet = make(map[string]bool, len(opt.SourceColumns))
		for _, c := range opt.SourceColumns {
			srcSet[c] = true
		}
		if !srcSet[storage.OrdinalColumn] {
			return nil, &ValidationError{Column: storage.OrdinalColumn, Reason: "source has no ordinal column", Available: opt.SourceColumns}
		}
	}

	// Column inference. References to a name derived earlier are satisfied by
	// the derivation; anything else must come from the source.
	required := newOrderedSet(storage.OrdinalColumn)
	derived := newOrderedSet()
	for _, op := range ops {
		for _, c := range op.Columns() {
			if !derived.has(c) {
				required.add(c)
			}
		}
		if cc, ok := op.(pipeline.Concat); ok {
			if required.has(cc.Name) || derived.has(cc.Name) || isInternal(cc.Name) || (srcSet != nil && srcSet[cc.Name]) {
				return nil, &ValidationError{Column: cc.Name, Reason: "derived column collides with an existing column"}
			}
			derived.add(cc.Name)
		}
	}
	output := newOrderedSet()
	for _, c := range opt.Output {
		switch {
		case c == RowIDColumn || c == RankColumn:
			return nil, &ValidationError{Column: c, Reason: "internal column cannot be selected"}
		case c == storage.OrdinalColumn:
			continue
		case output.has(c):
			return nil, &ValidationError{Column: c, Reason: "listed twice in output"}
		}
		output.add(c)
		if !derived.has(c) {
			required.add(c)
		}
	}

	if srcSet != nil {
		for _, c := range required.list {
			if !srcSet[c] {
				return nil, &ValidationError{Column: c, Reason: "not present in source " + opt.Source, Available: opt.SourceColumns}
			}
		}
	}

	// Base stage columns: the pruned required set, or the whole described
	// source minus internal columns left behind by an earlier select-all run.
	switch {
	case !pl.selectAll:
		pl.baseCols = required.list
	case srcSet != nil:
		for _, c := range opt.SourceColumns {
			if !isInternal(c) {
				pl.baseCols = append(pl.baseCols, c)
			}
		}
	}

	var visible []string
	if pl.baseCols != nil {
		visible = append([]string{RowIDColumn}, pl.baseCols...)
	}
	pl.stages = append(pl.stages, Stage{Name: baseStage, From: opt.Source, Columns: visible})
	prev := baseStage
	for i, op := range ops {
		if visible != nil {
			for _, c := range op.Columns() {
				if !contains(visible, c) {
					return nil, &ValidationError{Column: c, Reason: fmt.Sprintf("referenced by step %d (%s) before it exists", i+1, op.Op()), Available: visible}
				}
			}
			if cc, ok := op.(pipeline.Concat); ok {
				visible = append(append([]string(nil), visible...), cc.Name)
			}
		}
		name := fmt.Sprintf("s%d", i+1)
		pl.stages = append(pl.stages, Stage{Name: name, From: prev, Op: op, Columns: visible})
		prev = name
	}

	// Final projection check: every requested column must be visible in the
	// last stage, either read from the base or derived on the way.
	if !pl.selectAll {
		last := pl.stages[len(pl.stages)-1].Columns
		for _, c := range output.list {
			if !contains(last, c) {
				return nil, &ValidationError{Column: c, Reason: "not produced by the pipeline", Available: last}
			}
		}
		pl.output = append([]string{storage.OrdinalColumn}, output.list...)
	} else if v := pl.stages[len(pl.stages)-1].Columns; v != nil {
		pl.output = append([]string(nil), v...)
	}

	pl.required = required.list
	pl.derived = derived.list
	return pl, nil
}

// checkOps rejects malformed operations before inference.
func checkOps(ops []pipeline.Operation) error {
	for i, op := range ops {
		switch o := op.(type) {
		case pipeline.Equals, pipeline.NotEquals, pipeline.In, pipeline.DedupBy:
		case pipeline.AllEquals:
		case pipeline.DateRange:
			for _, b := range []string{o.Start, o.End} {
				if b != "" && !normalize.IsISODate(normalize.DateOnly(b)) {
					return &ValidationError{Column: o.Column, Reason: fmt.Sprintf("step %d: date bound %q is not a calendar date", i+1, b)}
				}
			}
		case pipeline.Concat:
			if strings.TrimSpace(o.Name) == "" {
				return &ValidationError{Column: o.Name, Reason: fmt.Sprintf("step %d: concat needs a column name", i+1)}
			}
		case nil:
			return fmt.Errorf("%w: step %d is nil", ErrUnknownOperation, i+1)
		default:
			return fmt.Errorf("%w: step %d: %T", ErrUnknownOperation, i+1, op)
		}
		for _, c := range op.Columns() {
			if strings.TrimSpace(c) == "" {
				return &ValidationError{Column: c, Reason: fmt.Sprintf("step %d (%s) names an empty column", i+1, op.Op())}
			}
			if c == RowIDColumn || c == RankColumn {
				return &ValidationError{Column: c, Reason: "internal column cannot be referenced"}
			}
		}
	}
	return nil
}

// Claim marks the plan as executed. It fails with ErrPlanUsed on every call
// after the first.
func (p *Plan) Claim() error {
	if !p.used.CompareAndSwap(false, true) {
		return ErrPlanUsed
	}
	return nil
}

// Used reports whether Claim has succeeded.
func (p *Plan) Used() bool { return p.used.Load() }

// Source is the table the plan reads.
func (p *Plan) Source() string { return p.source }

// SelectAll reports whether the plan keeps every visible column.
func (p *Plan) SelectAll() bool { return p.selectAll }

// Required lists the source columns the plan reads, ordinal first.
func (p *Plan) Required() []string { return append([]string(nil), p.required...) }

// Derived lists the columns introduced by concatenation, in order.
func (p *Plan) Derived() []string { return append([]string(nil), p.derived...) }

// Output lists the final columns. For a select-all plan over an undescribed
// source it is nil.
func (p *Plan) Output() []string { return append([]string(nil), p.output...) }

// Stages returns the intermediate representation, base first.
func (p *Plan) Stages() []Stage { return append([]Stage(nil), p.stages...) }

// Describe renders a multi-line summary for logs and the CLI.
func (p *Plan) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan source=%s select_all=%t\n", p.source, p.selectAll)
	fmt.Fprintf(&b, "  required: [%s]\n", strings.Join(p.required, ", "))
	fmt.Fprintf(&b, "  derived:  [%s]\n", strings.Join(p.derived, ", "))
	if p.output != nil {
		fmt.Fprintf(&b, "  output:   [%s]\n", strings.Join(p.output, ", "))
	} else {
		b.WriteString("  output:   *\n")
	}
	for _, s := range p.stages {
		if s.Op == nil {
			cols := "*"
			if p.baseCols != nil {
				cols = strings.Join(p.baseCols, ", ")
			}
			fmt.Fprintf(&b, "  %-4s <- %s (%s)\n", s.Name, s.From, cols)
			continue
		}
		fmt.Fprintf(&b, "  %-4s <- %s %s\n", s.Name, s.From, s.Op)
	}
	return b.String()
}

func isInternal(c string) bool { return c == RowIDColumn || c == RankColumn }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type orderedSet struct {
	list []string
	seen map[string]bool
}

func newOrderedSet(init ...string) *orderedSet {
	s := &orderedSet{seen: map[string]bool{}}
	for _, v := range init {
		s.add(v)
	}
	return s
}

func (s *orderedSet) add(v string) {
	if !s.seen[v] {
		s.seen[v] = true
		s.list = append(s.list, v)
	}
}

func (s *orderedSet) has(v string) bool { return s.seen[v] }
