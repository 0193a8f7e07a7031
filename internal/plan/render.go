package plan

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"tableflow/internal/normalize"
	"tableflow/internal/pipeline"
	"tableflow/internal/storage"
)

// Query is a plan serialized for one dialect. The parts are kept apart so a
// dialect can wrap them in its own materialization statement.
type Query struct {
	// With is the "WITH name AS (...), ..." clause.
	With string
	// Select is the final select list.
	Select string
	// From is the last stage name.
	From string
	// Args are the positional parameters in placeholder order.
	Args []any
}

// SQL joins the parts into one SELECT statement.
func (q Query) SQL() string {
	return q.With + " SELECT " + q.Select + " FROM " + q.From
}

type renderer struct {
	d    storage.Dialect
	args []any
}

func (r *renderer) param(v any) string {
	r.args = append(r.args, v)
	return r.d.Placeholder(len(r.args))
}

func (r *renderer) ident(s string) string { return r.d.QuoteIdent(s) }

// Render serializes the plan for d. It does not claim the plan.
func (p *Plan) Render(d storage.Dialect) (Query, error) {
	r := &renderer{d: d}
	ctes := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		body, err := r.stage(p, s)
		if err != nil {
			return Query{}, err
		}
		ctes = append(ctes, fmt.Sprintf("%s AS (%s)", s.Name, body))
	}

	sel := "*"
	if !p.selectAll {
		cols := make([]string, len(p.output))
		for i, c := range p.output {
			cols[i] = r.ident(c)
		}
		sel = strings.Join(cols, ", ")
	}
	return Query{
		With:   "WITH " + strings.Join(ctes, ", "),
		Select: sel,
		From:   p.stages[len(p.stages)-1].Name,
		Args:   r.args,
	}, nil
}

func (r *renderer) stage(p *Plan, s Stage) (string, error) {
	if s.Op == nil {
		return r.base(p), nil
	}
	from := s.From
	switch op := s.Op.(type) {
	case pipeline.Equals:
		return r.filter(from, r.eq(op.Column, op.Value)), nil
	case pipeline.NotEquals:
		col := r.ident(op.Column)
		if op.Value == nil {
			return r.filter(from, col+" IS NOT NULL"), nil
		}
		return r.filter(from, fmt.Sprintf("%s IS NOT NULL AND %s <> %s", col, col, r.param(op.Value))), nil
	case pipeline.AllEquals:
		if len(op.Conditions) == 0 {
			return r.filter(from, "1 = 1"), nil
		}
		parts := make([]string, len(op.Conditions))
		for i, c := range op.Conditions {
			parts[i] = "(" + r.eq(c.Column, c.Value) + ")"
		}
		return r.filter(from, strings.Join(parts, " AND ")), nil
	case pipeline.In:
		if len(op.Values) == 0 {
			return r.filter(from, "1 = 0"), nil
		}
		ph := make([]string, len(op.Values))
		for i, v := range op.Values {
			ph[i] = r.param(v)
		}
		return r.filter(from, fmt.Sprintf("%s IN (%s)", r.ident(op.Column), strings.Join(ph, ", "))), nil
	case pipeline.DateRange:
		return r.filter(from, r.dateRange(op)), nil
	case pipeline.Concat:
		return r.concat(from, op), nil
	case pipeline.DedupBy:
		return r.dedup(from, op.Column), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownOperation, s.Op)
	}
}

func (r *renderer) base(p *Plan) string {
	rid := r.d.RowID() + " AS " + r.ident(RowIDColumn)
	if p.baseCols == nil {
		return fmt.Sprintf("SELECT %s, s.* FROM %s AS s", rid, r.ident(p.source))
	}
	cols := make([]string, len(p.baseCols))
	for i, c := range p.baseCols {
		cols[i] = "s." + r.ident(c)
	}
	return fmt.Sprintf("SELECT %s, %s FROM %s AS s", rid, strings.Join(cols, ", "), r.ident(p.source))
}

func (r *renderer) filter(from, cond string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s", from, cond)
}

func (r *renderer) eq(column string, v any) string {
	if v == nil {
		return r.ident(column) + " IS NULL"
	}
	return r.ident(column) + " = " + r.param(v)
}

func (r *renderer) dateRange(op pipeline.DateRange) string {
	val := r.d.AsDate(r.d.AsText(r.ident(op.Column)))
	var conds []string
	if op.Start != "" {
		conds = append(conds, fmt.Sprintf("%s >= %s", val, r.d.DateParam(r.param(normalize.DateOnly(op.Start)))))
	}
	if op.End != "" {
		conds = append(conds, fmt.Sprintf("%s <= %s", val, r.d.DateParam(r.param(normalize.DateOnly(op.End)))))
	}
	if len(conds) == 0 {
		return "1 = 1"
	}
	return strings.Join(conds, " AND ")
}

func (r *renderer) concat(from string, op pipeline.Concat) string {
	expr := r.d.StringLiteral("")
	if len(op.Inputs) > 0 {
		sep := r.d.StringLiteral(op.Sep)
		parts := make([]string, 0, 2*len(op.Inputs)-1)
		for i, c := range op.Inputs {
			if i > 0 && op.Sep != "" {
				parts = append(parts, sep)
			}
			parts = append(parts, r.d.AsText("p."+r.ident(c)))
		}
		expr = r.d.Concat(parts)
	}
	return fmt.Sprintf("SELECT p.*, %s AS %s FROM %s AS p", expr, r.ident(op.Name), from)
}

// dedup keeps, for every key, the row with the smallest (ordinal, row id).
// The rank is computed in a nested query so it never becomes visible.
func (r *renderer) dedup(from, key string) string {
	rid := r.ident(RowIDColumn)
	rn := r.ident(RankColumn)
	ranked := fmt.Sprintf(
		"SELECT %s, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s ASC, %s ASC) AS %s FROM %s",
		rid, r.ident(key), r.ident(storage.OrdinalColumn), rid, rn, from)
	return fmt.Sprintf("SELECT * FROM %s WHERE %s IN (SELECT r.%s FROM (%s) r WHERE r.%s = 1)",
		from, rid, rid, ranked, rn)
}

// Fingerprint hashes the rendered query and its arguments. Equal pipelines
// over the same source produce equal fingerprints.
func (p *Plan) Fingerprint(d storage.Dialect) (string, error) {
	q, err := p.Render(d)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(q.SQL())
	for _, a := range q.Args {
		fmt.Fprintf(&b, "\x00%T:%v", a, a)
	}
	return fmt.Sprintf("%016x", xxh3.HashString(b.String())), nil
}
