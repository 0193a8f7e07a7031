package executor_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflow/internal/ddl"
	"tableflow/internal/executor"
	"tableflow/internal/normalize"
	"tableflow/internal/pipeline"
	"tableflow/internal/plan"
	"tableflow/internal/progress"
	"tableflow/internal/storage"
	_ "tableflow/internal/storage/sqlite"
)

// source creates an owning in-memory table with an ordinal column followed
// by text columns. Each row starts with its ordinal.
func source(tb testing.TB, cols []string, rows ...[]any) *storage.Table {
	tb.Helper()
	ctx := context.Background()
	t, err := storage.OpenTable(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:"}, "raw")
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = t.Close() })

	def := ddl.TableDef{Name: "raw", Columns: []ddl.ColumnDef{{Name: storage.OrdinalColumn, Kind: ddl.Integer}}}
	for _, c := range cols {
		def.Columns = append(def.Columns, ddl.ColumnDef{Name: c, Kind: ddl.Text})
	}
	require.NoError(tb, t.DB().ReplaceTable(ctx, def))
	_, err = t.DB().CopyFrom(ctx, "raw", def.Names(), rows)
	require.NoError(tb, err)
	return t
}

func column(tb testing.TB, t *storage.Table, col string) []any {
	tb.Helper()
	var out []any
	err := t.Stream(context.Background(), t.Select(col), nil, func(_ []string, vals []any) error {
		out = append(out, vals[0])
		return nil
	})
	require.NoError(tb, err)
	return out
}

func ordinals(tb testing.TB, t *storage.Table) []int64 {
	tb.Helper()
	var out []int64
	for _, v := range column(tb, t, storage.OrdinalColumn) {
		out = append(out, v.(int64))
	}
	return out
}

func apply(tb testing.TB, src *storage.Table, p pipeline.Pipeline, dest string, output ...string) *storage.Table {
	tb.Helper()
	out, err := executor.Apply(context.Background(), src, p, dest, output, executor.Options{})
	require.NoError(tb, err)
	return out
}

func TestDedupKeepsFirstOrdinal(t *testing.T) {
	t.Parallel()
	src := source(t, []string{"K"},
		[]any{int64(1), "x"},
		[]any{int64(2), "y"},
		[]any{int64(3), "x"},
	)
	out := apply(t, src, pipeline.New().DedupBy("K"), "dedup", "K")
	assert.Equal(t, []int64{1, 2}, ordinals(t, out))

	cols, err := out.ColumnNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"__ordinal", "K"}, cols)
}

func TestDedupIsDeterministicUnderPhysicalPermutation(t *testing.T) {
	t.Parallel()
	// Physical order differs from ordinal order; the smallest ordinal wins.
	src := source(t, []string{"K", "V"},
		[]any{int64(3), "x", "third"},
		[]any{int64(2), "y", "second"},
		[]any{int64(1), "x", "first"},
		[]any{int64(4), "y", "fourth"},
	)
	out := apply(t, src, pipeline.New().DedupBy("K"), "dedup", "K", "V")
	assert.Equal(t, []int64{1, 2}, ordinals(t, out))
	assert.Equal(t, []any{"first", "second"}, column(t, out, "V"))
}

func TestDedupIsIdempotent(t *testing.T) {
	t.Parallel()
	src := source(t, []string{"K"},
		[]any{int64(1), "a"}, []any{int64(2), "b"}, []any{int64(3), "a"}, []any{int64(4), "c"}, []any{int64(5), "b"},
	)
	once := apply(t, src, pipeline.New().DedupBy("K"), "once")
	twice := apply(t, once, pipeline.New().DedupBy("K"), "twice")

	assert.Equal(t, []int64{1, 2, 4}, ordinals(t, once))
	assert.Equal(t, ordinals(t, once), ordinals(t, twice))
	assert.Equal(t, column(t, once, "K"), column(t, twice, "K"))
}

func TestConcatExample(t *testing.T) {
	t.Parallel()
	src := source(t, []string{"A", "B"},
		[]any{int64(1), "TS", "36.331"},
		[]any{int64(2), "", ""},
		[]any{int64(3), nil, "x"},
	)
	out := apply(t, src, pipeline.New().Concat([]string{"A", "B"}, "C", "_"), "cat", "C")
	assert.Equal(t, []any{"TS_36.331", "_", "_x"}, column(t, out, "C"))
}

func TestConcatReproducesOnItsOwnOutput(t *testing.T) {
	t.Parallel()
	src := source(t, []string{"A", "B"},
		[]any{int64(1), "TS", "36.331"},
		[]any{int64(2), " a ", nil},
	)
	first := apply(t, src, pipeline.New().Concat([]string{"A", "B"}, "C", "/"), "first", "A", "B", "C")
	second := apply(t, first, pipeline.New().Concat([]string{"A", "B"}, "D", "/"), "second", "C", "D")
	assert.Equal(t, column(t, second, "C"), column(t, second, "D"))
}

func TestEqualsAndNotEqualsNullPartition(t *testing.T) {
	t.Parallel()
	src := source(t, []string{"V"},
		[]any{int64(1), nil},
		[]any{int64(2), ""},
		[]any{int64(3), "x"},
		[]any{int64(4), nil},
	)
	isNull := apply(t, src, pipeline.New().Where("V", nil), "isnull")
	notNull := apply(t, src, pipeline.New().WhereNot("V", nil), "notnull")

	assert.Equal(t, []int64{1, 4}, ordinals(t, isNull))
	assert.Equal(t, []int64{2, 3}, ordinals(t, notNull))
}

func TestNotEqualsExcludesNulls(t *testing.T) {
	t.Parallel()
	src := source(t, []string{"V"},
		[]any{int64(1), nil},
		[]any{int64(2), ""},
		[]any{int64(3), "x"},
	)
	out := apply(t, src, pipeline.New().WhereNot("V", ""), "ne")
	assert.Equal(t, []int64{3}, ordinals(t, out))
}

func TestInAndDateRange(t *testing.T) {
	t.Parallel()
	src := source(t, []string{"C", "D"},
		[]any{int64(1), "a", "2020-01-01"},
		[]any{int64(2), "b", "2020/06/15"},
		[]any{int64(3), "c", "2021.01.01"},
		[]any{int64(4), "a", "garbage"},
		[]any{int64(5), "b", nil},
	)
	in := apply(t, src, pipeline.New().WhereIn("C", "a", "b"), "in")
	assert.Equal(t, []int64{1, 2, 4, 5}, ordinals(t, in))

	empty := apply(t, src, pipeline.New().WhereIn("C"), "none")
	assert.Empty(t, ordinals(t, empty))

	rng := apply(t, src, pipeline.New().Between("D", "2020-02-01", "2021-01-01"), "range")
	assert.Equal(t, []int64{2, 3}, ordinals(t, rng))

	open := apply(t, src, pipeline.New().Between("D", "", "2020-06-15"), "open")
	assert.Equal(t, []int64{1, 2}, ordinals(t, open))
}

func TestFlagFilterExample(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := source(t, []string{"3G", "Ess_To_Standard"},
		[]any{int64(1), "1", "yes"},
		[]any{int64(2), "0", "no"},
		[]any{int64(3), "1", "YES"},
	)
	norm, _, err := normalize.Normalize(ctx, src, normalize.Options{Dest: "norm", Progress: progress.Discard})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(0), int64(1)}, column(t, norm, "Ess_To_Standard"))

	out := apply(t, norm, pipeline.New().Where("3G", 1).Where("Ess_To_Standard", 1), "hits", "3G")
	assert.Equal(t, []int64{1, 3}, ordinals(t, out))
}

func TestFailedExecutionLeavesPreviousDestination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := source(t, []string{"V"}, []any{int64(1), "x"}, []any{int64(2), "y"})
	apply(t, src, pipeline.New().Where("V", "x"), "out")

	// Compiled without a description, so the missing column is only caught by
	// the store when the base stage selects it.
	missing := func() *plan.Plan {
		pl, err := plan.Compile(pipeline.New(), plan.Options{Source: "raw", Output: []string{"missing"}})
		require.NoError(t, err)
		return pl
	}
	_, err := executor.Execute(ctx, src, missing(), "out", executor.Options{})
	require.Error(t, err)
	assert.True(t, storage.IsStoreError(err), "got %v", err)

	still := src.Sibling("out")
	assert.Equal(t, []int64{1}, ordinals(t, still))

	_, err = executor.Execute(ctx, src, missing(), "fresh", executor.Options{})
	require.Error(t, err)
	ok, err := src.DB().Exists(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, ok)
}

func mustCompile(tb testing.TB, source string, p pipeline.Pipeline) *plan.Plan {
	tb.Helper()
	pl, err := plan.Compile(p, plan.Options{Source: source})
	require.NoError(tb, err)
	return pl
}

func TestExecuteRejectsReuseAndForeignSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := source(t, []string{"V"}, []any{int64(1), "x"})

	p := mustCompile(t, "raw", pipeline.New())
	_, err := executor.Execute(ctx, src, p, "a", executor.Options{})
	require.NoError(t, err)
	_, err = executor.Execute(ctx, src, p, "b", executor.Options{})
	assert.ErrorIs(t, err, plan.ErrPlanUsed)

	other := mustCompile(t, "elsewhere", pipeline.New())
	_, err = executor.Execute(ctx, src, other, "c", executor.Options{})
	require.Error(t, err)
	assert.False(t, other.Used())
}

func TestResultSharesStoreWithoutOwningIt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := source(t, []string{"V"}, []any{int64(1), "x"}, []any{int64(2), "x"})

	out := apply(t, src, pipeline.New().DedupBy("V"), "")
	assert.True(t, strings.HasPrefix(out.Name(), "raw__step_"), out.Name())
	assert.False(t, out.Owner())
	require.NoError(t, out.Close())

	n, err := src.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "source must be untouched and the store still open")
}

func TestApplyValidatesAgainstDescribedSource(t *testing.T) {
	t.Parallel()
	src := source(t, []string{"V"}, []any{int64(1), "x"})
	_, err := executor.Apply(context.Background(), src, pipeline.New().Where("nope", 1), "out", nil, executor.Options{})
	var ve *plan.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "nope", ve.Column)
	assert.Contains(t, ve.Available, "V")
}

func TestSelectAllChainsWithoutDuplicatingRowID(t *testing.T) {
	t.Parallel()
	src := source(t, []string{"V"}, []any{int64(1), "x"}, []any{int64(2), "y"})
	first := apply(t, src, pipeline.New().WhereNot("V", "z"), "first")
	second := apply(t, first, pipeline.New().Where("V", "y"), "second")

	cols, err := second.ColumnNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"__rid", "__ordinal", "V"}, cols)
	assert.Equal(t, []int64{2}, ordinals(t, second))
}
