package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflow/internal/pipeline"
)

func TestPipeline_BuildersAreImmutable(t *testing.T) {
	t.Parallel()

	base := pipeline.New().Where("3G", 1)
	a := base.DedupBy("K")
	b := base.Concat([]string{"A", "B"}, "C", "_")

	require.Equal(t, 1, base.Len())
	require.Equal(t, 2, a.Len())
	require.Equal(t, 2, b.Len())
	assert.Equal(t, pipeline.DedupBy{Column: "K"}, a.Ops()[1])
	assert.Equal(t, pipeline.Concat{Inputs: []string{"A", "B"}, Name: "C", Sep: "_"}, b.Ops()[1])

	ops := a.Ops()
	ops[0] = pipeline.DedupBy{Column: "X"}
	assert.Equal(t, pipeline.Equals{Column: "3G", Value: 1}, a.Ops()[0], "Ops must return a copy")
}

func TestPipeline_ZeroValue(t *testing.T) {
	t.Parallel()
	var p pipeline.Pipeline
	assert.Equal(t, 0, p.Len())
	assert.Empty(t, p.Ops())
	assert.Equal(t, 1, p.WhereIn("x").Len())
}

func TestOperation_TagsAndColumns(t *testing.T) {
	t.Parallel()
	tests := []struct {
		op   pipeline.Operation
		tag  string
		cols []string
		str  string
	}{
		{pipeline.Equals{Column: "a", Value: nil}, "eq", []string{"a"}, "eq(a, NULL)"},
		{pipeline.NotEquals{Column: "a", Value: "x"}, "ne", []string{"a"}, `ne(a, "x")`},
		{pipeline.AllEquals{Conditions: []pipeline.Equals{{Column: "a", Value: 1}, {Column: "b", Value: "y"}}},
			"all_eq", []string{"a", "b"}, `all_eq(a=1, b="y")`},
		{pipeline.In{Column: "c", Values: []any{1, 2}}, "in", []string{"c"}, "in(c, [1, 2])"},
		{pipeline.DateRange{Column: "d", Start: "2020-01-01"}, "date_range", []string{"d"}, "date_range(d, 2020-01-01..*)"},
		{pipeline.Concat{Inputs: []string{"A", "B"}, Name: "C", Sep: "_"}, "concat", []string{"A", "B"}, `concat([A, B], C, "_")`},
		{pipeline.DedupBy{Column: "K"}, "dedup", []string{"K"}, "dedup(K)"},
	}
	for _, tc := range tests {
		t.Run(tc.tag, func(t *testing.T) {
			assert.Equal(t, tc.tag, tc.op.Op())
			assert.Equal(t, tc.cols, tc.op.Columns())
			assert.Equal(t, tc.str, tc.op.String())
		})
	}
}

func TestPipeline_String(t *testing.T) {
	t.Parallel()
	p := pipeline.New().Where("3G", 1).Between("d", "", "2020-12-31").DedupBy("K")
	assert.Equal(t, "eq(3G, 1) | date_range(d, *..2020-12-31) | dedup(K)", p.String())
}
