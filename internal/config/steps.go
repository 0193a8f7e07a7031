package config

import (
	"fmt"

	"tableflow/internal/pipeline"
)

// Step ops accepted in job files. Aliases map onto the same operation.
var stepOps = map[string]string{
	"eq": "eq", "where": "eq",
	"ne": "ne", "where_not": "ne",
	"all_eq": "all_eq", "where_all": "all_eq",
	"in": "in", "where_in": "in",
	"date_range": "date_range", "between": "date_range",
	"concat": "concat",
	"dedup": "dedup", "dedup_by": "dedup",
}

// CanonicalOp resolves an op name or alias; ok is false for unknown ops.
func CanonicalOp(op string) (canonical string, ok bool) {
	canonical, ok = stepOps[op]
	return canonical, ok
}

// Operation converts the step into a pipeline operation.
func (s Step) Operation() (pipeline.Operation, error) {
	op, ok := CanonicalOp(s.Op)
	if !ok {
		return nil, fmt.Errorf("unknown op %q", s.Op)
	}
	o := s.Options
	col := o.String("column", "")
	switch op {
	case "eq":
		return pipeline.Equals{Column: col, Value: o.Any("value")}, nil
	case "ne":
		return pipeline.NotEquals{Column: col, Value: o.Any("value")}, nil
	case "all_eq":
		var conds []pipeline.Equals
		for i, raw := range o.Slice("conditions") {
			m, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("conditions[%d] must be an object", i)
			}
			c := Options(m)
			conds = append(conds, pipeline.Equals{Column: c.String("column", ""), Value: c.Any("value")})
		}
		return pipeline.AllEquals{Conditions: conds}, nil
	case "in":
		return pipeline.In{Column: col, Values: o.Slice("values")}, nil
	case "date_range":
		return pipeline.DateRange{Column: col, Start: o.String("start", ""), End: o.String("end", "")}, nil
	case "concat":
		inputs, err := o.Strings("columns")
		if err != nil {
			return nil, err
		}
		return pipeline.Concat{Inputs: inputs, Name: o.String("name", ""), Sep: o.String("sep", "")}, nil
	default: // dedup
		return pipeline.DedupBy{Column: col}, nil
	}
}

// Build converts the steps into a pipeline.
func (p Pipeline) Build() (pipeline.Pipeline, error) {
	var out pipeline.Pipeline
	for i, s := range p.Steps {
		op, err := s.Operation()
		if err != nil {
			return pipeline.Pipeline{}, fmt.Errorf("config: pipeline %q step %d: %w", p.Name, i, err)
		}
		out = out.Then(op)
	}
	return out, nil
}
