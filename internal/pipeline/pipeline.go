// Package pipeline defines the declarative operations a caller chains
// together and the immutable Pipeline value that holds them in order.
//
// Operation is a closed sum type: only the types in this package implement
// it, so the compiler's type switch over them is exhaustive.
package pipeline

import (
	"fmt"
	"strings"
)

// Operation is one declarative step.
type Operation interface {
	// Op is the operation's tag as used in job files.
	Op() string
	// Columns lists the input columns the operation reads.
	Columns() []string
	String() string

	operation()
}

// Equals keeps rows whose Column equals Value. A nil Value keeps rows where
// Column is NULL.
type Equals struct {
	Column string
	Value  any
}

// NotEquals keeps rows whose Column is non-NULL and differs from Value.
// A nil Value keeps every non-NULL row. NULL rows are never kept.
type NotEquals struct {
	Column string
	Value  any
}

// AllEquals is a conjunction of Equals conditions evaluated in one step.
// Empty Conditions keeps every row.
type AllEquals struct {
	Conditions []Equals
}

// In keeps rows whose Column is one of Values. Empty Values keeps no rows.
type In struct {
	Column string
	Values []any
}

// DateRange keeps rows whose Column, read as a date, lies within the
// inclusive bounds. An empty bound is not enforced.
type DateRange struct {
	Column string
	Start  string
	End    string
}

// Concat derives Name as the Sep-joined text of Inputs. NULL inputs count as
// empty strings. No rows are removed.
type Concat struct {
	Inputs []string
	Name   string
	Sep    string
}

// DedupBy keeps the first row, by ordinal, of every distinct Column value.
type DedupBy struct {
	Column string
}

func (Equals) operation()    {}
func (NotEquals) operation() {}
func (AllEquals) operation() {}
func (In) operation()        {}
func (DateRange) operation() {}
func (Concat) operation()    {}
func (DedupBy) operation()   {}

func (Equals) Op() string    { return "eq" }
func (NotEquals) Op() string { return "ne" }
func (AllEquals) Op() string { return "all_eq" }
func (In) Op() string        { return "in" }
func (DateRange) Op() string { return "date_range" }
func (Concat) Op() string    { return "concat" }
func (DedupBy) Op() string   { return "dedup" }

func (o Equals) Columns() []string    { return []string{o.Column} }
func (o NotEquals) Columns() []string { return []string{o.Column} }
func (o In) Columns() []string        { return []string{o.Column} }
func (o DateRange) Columns() []string { return []string{o.Column} }
func (o Concat) Columns() []string    { return append([]string(nil), o.Inputs...) }
func (o DedupBy) Columns() []string   { return []string{o.Column} }

func (o AllEquals) Columns() []string {
	out := make([]string, 0, len(o.Conditions))
	for _, c := range o.Conditions {
		out = append(out, c.Column)
	}
	return out
}

func (o Equals) String() string    { return fmt.Sprintf("eq(%s, %s)", o.Column, show(o.Value)) }
func (o NotEquals) String() string { return fmt.Sprintf("ne(%s, %s)", o.Column, show(o.Value)) }
func (o DedupBy) String() string   { return fmt.Sprintf("dedup(%s)", o.Column) }

func (o AllEquals) String() string {
	parts := make([]string, len(o.Conditions))
	for i, c := range o.Conditions {
		parts[i] = c.Column + "=" + show(c.Value)
	}
	return "all_eq(" + strings.Join(parts, ", ") + ")"
}

func (o In) String() string {
	parts := make([]string, len(o.Values))
	for i, v := range o.Values {
		parts[i] = show(v)
	}
	return fmt.Sprintf("in(%s, [%s])", o.Column, strings.Join(parts, ", "))
}

func (o DateRange) String() string {
	return fmt.Sprintf("date_range(%s, %s..%s)", o.Column, orOpen(o.Start), orOpen(o.End))
}

func (o Concat) String() string {
	return fmt.Sprintf("concat([%s], %s, %q)", strings.Join(o.Inputs, ", "), o.Name, o.Sep)
}

func show(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprint(x)
	}
}

func orOpen(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

// Pipeline is an ordered list of operations. The zero value is an empty
// pipeline. Every builder method returns a new Pipeline and leaves the
// receiver untouched, so a prefix can be shared between several branches.
type Pipeline struct {
	ops []Operation
}

// New returns a pipeline holding ops in order.
func New(ops ...Operation) Pipeline {
	return Pipeline{ops: append([]Operation(nil), ops...)}
}

// Then appends op.
func (p Pipeline) Then(op Operation) Pipeline {
	ops := make([]Operation, len(p.ops), len(p.ops)+1)
	copy(ops, p.ops)
	return Pipeline{ops: append(ops, op)}
}

// Ops returns a copy of the operations in execution order.
func (p Pipeline) Ops() []Operation { return append([]Operation(nil), p.ops...) }

// Len is the number of operations.
func (p Pipeline) Len() int { return len(p.ops) }

func (p Pipeline) Where(column string, value any) Pipeline {
	return p.Then(Equals{Column: column, Value: value})
}

func (p Pipeline) WhereNot(column string, value any) Pipeline {
	return p.Then(NotEquals{Column: column, Value: value})
}

// WhereAll appends one AllEquals step holding conds in the order given.
func (p Pipeline) WhereAll(conds ...Equals) Pipeline {
	return p.Then(AllEquals{Conditions: append([]Equals(nil), conds...)})
}

func (p Pipeline) WhereIn(column string, values ...any) Pipeline {
	return p.Then(In{Column: column, Values: append([]any(nil), values...)})
}

func (p Pipeline) Between(column, start, end string) Pipeline {
	return p.Then(DateRange{Column: column, Start: start, End: end})
}

func (p Pipeline) Concat(inputs []string, name, sep string) Pipeline {
	return p.Then(Concat{Inputs: append([]string(nil), inputs...), Name: name, Sep: sep})
}

func (p Pipeline) DedupBy(column string) Pipeline {
	return p.Then(DedupBy{Column: column})
}

func (p Pipeline) String() string {
	parts := make([]string, len(p.ops))
	for i, op := range p.ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, " | ")
}
