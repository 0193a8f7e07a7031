package normalize

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"tableflow/internal/ddl"
	"tableflow/internal/metrics"
	"tableflow/internal/progress"
	"tableflow/internal/storage"
)

const (
	// DefaultPageSize is the number of source rows read per keyset page.
	DefaultPageSize = 100_000
	// DefaultProgressEvery is the progress cadence in rows.
	DefaultProgressEvery = 300_000
	// DestSuffix is appended to the source name when Options.Dest is empty.
	DestSuffix = "__norm"
)

// Options tune a normalization run.
type Options struct {
	// Dest names the output table; empty means "<source>__norm".
	Dest string
	// Rules defaults to DefaultRules.
	Rules *Rules

	PageSize      int
	ProgressEvery int64
	Progress      progress.Reporter
	Job           string
}

// Result summarizes a run. Rows + Bad == Lines.
type Result struct {
	Table   string
	Rows    int64
	Bad     int64
	Lines   int64
	Elapsed time.Duration
}

// SchemaError is returned when the source table has no columns.
type SchemaError struct {
	Table string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("normalize: table %s has no columns", e.Table)
}

type column struct {
	name    string
	rule    rule
	ordinal bool
}

// Normalize reads src in ordinal order and writes the normalized rows into a
// new table in the same store. The output table is replaced and filled in a
// single transaction; the returned handle does not own the store.
func Normalize(ctx context.Context, src *storage.Table, opt Options) (_ *storage.Table, res Result, err error) {
	start := time.Now()
	if opt.Job == "" {
		opt.Job = "tableflow"
	}
	defer func() { metrics.RecordStep(opt.Job, "normalize", err, time.Since(start)) }()

	if opt.Rules == nil {
		r := DefaultRules()
		opt.Rules = &r
	}
	if opt.PageSize <= 0 {
		opt.PageSize = DefaultPageSize
	}
	if opt.ProgressEvery <= 0 {
		opt.ProgressEvery = DefaultProgressEvery
	}
	if opt.Progress == nil {
		opt.Progress = progress.Log{}
	}
	dest := opt.Dest
	if dest == "" {
		dest = src.Name() + DestSuffix
	}
	if dest == src.Name() {
		return nil, res, fmt.Errorf("normalize: destination %q is the source table", dest)
	}
	res.Table = dest

	db := src.DB()
	described, err := db.Describe(ctx, src.Name())
	if err != nil {
		return nil, res, err
	}
	if len(described) == 0 {
		return nil, res, &SchemaError{Table: src.Name()}
	}

	cols := make([]column, len(described))
	names := make([]string, len(described))
	def := ddl.TableDef{Name: dest}
	hasOrdinal := false
	for i, c := range described {
		col := column{name: c.Name, rule: opt.Rules.ruleFor(c.Name)}
		kind := col.rule.kind()
		if c.Name == storage.OrdinalColumn {
			col.ordinal, hasOrdinal = true, true
			kind = ddl.Integer
		}
		cols[i] = col
		names[i] = c.Name
		def.Columns = append(def.Columns, ddl.ColumnDef{Name: c.Name, Kind: kind})
	}
	create, err := ddl.BuildCreateTableSQL(db.Dialect(), def)
	if err != nil {
		return nil, res, err
	}

	log.Printf("normalize: start from=%s to=%s columns=%d ordinal=%t page=%d",
		src.Name(), dest, len(cols), hasOrdinal, opt.PageSize)

	event := func(done bool) progress.Event {
		return progress.Event{
			Stage: "normalize", Table: dest,
			Lines: res.Lines, Rows: res.Rows, Bad: res.Bad,
			Total: -1, Elapsed: time.Since(start), Done: done,
		}
	}

	d := db.Dialect()
	insert := db.InsertSQL(dest, names)
	err = db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, d.DropTableIfExists(dest)); err != nil {
			return &storage.StoreError{Op: "drop", Table: dest, Err: err}
		}
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return &storage.StoreError{Op: "create", Table: dest, Err: err}
		}

		pages := newPager(d, src.Name(), names, hasOrdinal, opt.PageSize)
		for {
			page, err := pages.next(ctx, tx)
			if err != nil {
				return &storage.StoreError{Op: "read", Table: src.Name(), Err: err}
			}
			if len(page) == 0 {
				return nil
			}
			out := make([][]any, 0, len(page))
			for _, raw := range page {
				res.Lines++
				row, ok := normalizeRow(cols, raw)
				if !ok {
					res.Bad++
				} else {
					res.Rows++
					out = append(out, row)
				}
				if res.Lines%opt.ProgressEvery == 0 {
					opt.Progress.Report(event(false))
				}
			}
			if _, err := storage.CopyTx(ctx, tx, insert, len(names), out); err != nil {
				return &storage.StoreError{Op: "insert", Table: dest, Err: err}
			}
		}
	})
	if err != nil {
		return nil, res, err
	}

	out := src.Sibling(dest)
	if hasOrdinal {
		if _, err := out.CreateIndex(ctx, storage.OrdinalColumn, false, ""); err != nil {
			return nil, res, err
		}
	}
	res.Elapsed = time.Since(start)
	opt.Progress.Report(event(true))
	return out, res, nil
}

// normalizeRow converts one source row. ok is false when the row cannot be
// normalized; a panic while converting is treated the same way.
func normalizeRow(cols []column, raw []any) (row []any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			row, ok = nil, false
		}
	}()
	row = make([]any, len(cols))
	for i, c := range cols {
		if c.ordinal {
			row[i] = raw[i]
			continue
		}
		s, good := asString(raw[i])
		if !good {
			return nil, false
		}
		row[i] = c.rule.apply(CleanText(s))
	}
	return row, true
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		return x, utf8.ValidString(x)
	case []byte:
		return string(x), utf8.Valid(x)
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// pager reads the source in ordinal order, one keyset page at a time, so
// that no result set is open while the page is written back. Without an
// ordinal column the whole table is one page.
type pager struct {
	query   string
	first   string
	ordIdx  int
	last    any
	started bool
	done    bool
}

func newPager(d storage.Dialect, table string, cols []string, ordered bool, size int) *pager {
	quoted := make([]string, len(cols))
	ordIdx := -1
	for i, c := range cols {
		quoted[i] = d.QuoteIdent(c)
		if c == storage.OrdinalColumn {
			ordIdx = i
		}
	}
	base := "SELECT " + strings.Join(quoted, ", ") + " FROM " + d.QuoteIdent(table)
	p := &pager{ordIdx: ordIdx}
	if !ordered {
		p.first = base
		return p
	}
	ord := d.QuoteIdent(storage.OrdinalColumn)
	p.first = d.Limit(base+" ORDER BY "+ord, size)
	p.query = d.Limit(base+" WHERE "+ord+" > "+d.Placeholder(1)+" ORDER BY "+ord, size)
	return p
}

func (p *pager) next(ctx context.Context, tx *sql.Tx) ([][]any, error) {
	if p.done {
		return nil, nil
	}
	q, args := p.first, []any(nil)
	if p.started {
		q, args = p.query, []any{p.last}
	}
	p.started = true

	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var page [][]any
	err = storage.ScanRows(rows, func(_ []string, vals []any) error {
		page = append(page, append([]any(nil), vals...))
		return nil
	})
	rows.Close()
	if err != nil {
		return nil, err
	}
	if p.query == "" || len(page) == 0 {
		p.done = true
	}
	if len(page) > 0 && p.ordIdx >= 0 {
		p.last = page[len(page)-1][p.ordIdx]
	}
	return page, nil
}
