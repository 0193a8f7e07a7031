// Package loader streams a delimited file into a new table of the backing
// store, reading the file exactly once.
//
// Every data record receives the next ordinal (1..N, file order, bad records
// excluded) in the storage.OrdinalColumn column; all other columns are text.
// Records are batched into one transaction per batch. Reading/decoding and
// writing run as two stages of an errgroup joined before Load returns, so the
// call is synchronous for the caller and rows are written in file order.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tableflow/internal/datasource/file"
	"tableflow/internal/ddl"
	"tableflow/internal/metrics"
	csvparse "tableflow/internal/parser/csv"
	"tableflow/internal/probe"
	"tableflow/internal/progress"
	"tableflow/internal/storage"
)

const (
	// DefaultBatchSize is the number of rows per insert transaction.
	DefaultBatchSize = 100_000
	// DefaultProgressEvery is the progress cadence in records.
	DefaultProgressEvery = 300_000
)

// Options tune a load. The zero value sniffs the format, loads every header
// column and reports progress to the log.
type Options struct {
	// Columns restricts the load to these header names, in this order.
	Columns []string
	// Delimiter and Encoding skip sniffing when both are set.
	Delimiter rune
	Encoding  string

	BatchSize     int
	ProgressEvery int64
	Progress      progress.Reporter

	// Job labels metrics.
	Job string
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	if o.Progress == nil {
		o.Progress = progress.Log{}
	}
	if o.Job == "" {
		o.Job = "tableflow"
	}
	return o
}

// Result summarizes a completed load. Rows + Bad == Lines.
type Result struct {
	Table     string
	Columns   []string
	Rows      int64
	Bad       int64
	Lines     int64
	Delimiter rune
	Encoding  string
	Elapsed   time.Duration
}

// SchemaError reports header problems detected before any record is read.
type SchemaError struct {
	Table     string
	Missing   []string // requested but absent from the header
	Duplicate []string // ambiguous or reserved names
	Available []string // header names
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns ["+strings.Join(e.Missing, ", ")+"]")
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "duplicate or reserved columns ["+strings.Join(e.Duplicate, ", ")+"]")
	}
	return fmt.Sprintf("loader: %s: %s; available [%s]",
		e.Table, strings.Join(parts, "; "), strings.Join(e.Available, ", "))
}

// Load reads path into table, replacing any existing table of that name.
// On failure the partially written table is dropped.
func Load(ctx context.Context, db *storage.DB, path, table string, opt Options) (res Result, err error) {
	start := time.Now()
	opt = opt.withDefaults()
	res.Table = table
	defer func() { metrics.RecordStep(opt.Job, "load", err, time.Since(start)) }()

	delim, enc := opt.Delimiter, opt.Encoding
	if delim == 0 || enc == "" {
		f, err := probe.Sniff(ctx, path, probe.SniffOptions{Encoding: enc})
		if err != nil {
			return res, err
		}
		if delim == 0 {
			delim = f.Delimiter
		}
		if enc == "" {
			enc = f.Encoding
		}
	}
	res.Delimiter, res.Encoding = delim, enc

	src, err := file.NewLocal(path).OpenStream(ctx)
	if err != nil {
		return res, fmt.Errorf("loader: %w", err)
	}
	defer src.Close()

	dec, err := probe.NewDecoder(src, enc)
	if err != nil {
		return res, err
	}
	valid, err := probe.FieldCheck(enc)
	if err != nil {
		return res, err
	}
	rd := csvparse.NewReader(dec, delim)
	header, err := rd.Header()
	if err != nil {
		return res, fmt.Errorf("loader: %s: %w", path, err)
	}

	cols, idx, err := resolveColumns(table, header, opt.Columns)
	if err != nil {
		return res, err
	}
	res.Columns = cols

	if err := db.ReplaceTable(ctx, tableDef(table, cols)); err != nil {
		return res, err
	}
	defer func() {
		if err != nil {
			if derr := db.DropTable(context.WithoutCancel(ctx), table); derr != nil {
				log.Printf("loader: drop partial table=%s err=%v", table, derr)
			}
		}
	}()

	log.Printf("loader: start file=%s table=%s columns=%d sep=%q enc=%s compression=%s batch=%d",
		path, table, len(cols), probe.DelimiterName(delim), enc, src.Compression(), opt.BatchSize)

	event := func(done bool) progress.Event {
		return progress.Event{
			Stage: "load", Table: table,
			Lines: res.Lines, Rows: res.Rows, Bad: res.Bad,
			Bytes: src.BytesRead(), Total: src.Size(),
			Elapsed:   time.Since(start),
			Delimiter: probe.DelimiterName(delim), Encoding: enc,
			Done: done,
		}
	}

	insertCols := append([]string{storage.OrdinalColumn}, cols...)
	batches := make(chan [][]any, 2)
	g, gctx := errgroup.WithContext(ctx)

	// Stage 1: read, split, assign ordinals. Owns res counters until Wait.
	g.Go(func() error {
		defer close(batches)
		send := func(b [][]any) error {
			select {
			case batches <- b:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		batch := make([][]any, 0, opt.BatchSize)
		for {
			rec, err := rd.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			res.Lines++
			switch {
			case csvparse.IsMalformed(err):
				res.Bad++
			case err != nil:
				return fmt.Errorf("loader: read %s: %w", path, err)
			case !decoded(rec, valid):
				res.Bad++
			default:
				res.Rows++
				batch = append(batch, buildRow(res.Rows, rec, idx))
				if len(batch) == opt.BatchSize {
					if err := send(batch); err != nil {
						return err
					}
					batch = make([][]any, 0, opt.BatchSize)
				}
			}
			if res.Lines%opt.ProgressEvery == 0 {
				opt.Progress.Report(event(false))
			}
		}
		if len(batch) > 0 {
			return send(batch)
		}
		return nil
	})

	// Stage 2: write batches, one transaction each.
	g.Go(func() error {
		var written, n int64
		last := time.Now()
		for b := range batches {
			inserted, err := db.CopyFrom(gctx, table, insertCols, b)
			written += inserted
			if err != nil {
				log.Printf("loader: batch failed table=%s after=%d total_inserted=%d err=%v", table, inserted, written, err)
				return err
			}
			n++
			metrics.RecordBatches(opt.Job, 1)
			since := time.Since(last)
			last = time.Now()
			rps := float64(0)
			if since > 0 {
				rps = float64(inserted) / since.Seconds()
			}
			log.Printf("loader: batch #%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s",
				n, rps, inserted, written, time.Since(start).Truncate(time.Millisecond))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return res, err
	}

	if _, err := db.CreateIndex(ctx, table, storage.OrdinalColumn, false, ""); err != nil {
		return res, err
	}

	res.Elapsed = time.Since(start)
	opt.Progress.Report(event(true))
	return res, nil
}

// decoded reports whether every field of rec passed the encoding check.
func decoded(rec []string, valid func(string) bool) bool {
	for _, f := range rec {
		if !valid(f) {
			return false
		}
	}
	return true
}

// buildRow lays out one insert row: ordinal first, then the requested fields
// with short records padded by empty strings.
func buildRow(ordinal int64, rec []string, idx []int) []any {
	row := make([]any, len(idx)+1)
	row[0] = ordinal
	for i, v := range csvparse.Project(rec, idx) {
		row[i+1] = v
	}
	return row
}

// resolveColumns maps the requested names (or the whole header) onto header
// positions. Blank header cells are named column_<position>.
func resolveColumns(table string, header, requested []string) ([]string, []int, error) {
	header = append([]string(nil), header...)
	pos := make(map[string]int, len(header))
	var dups []string
	for i, h := range header {
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
			header[i] = h
		}
		if _, seen := pos[h]; seen || h == storage.OrdinalColumn {
			dups = append(dups, h)
		}
		if _, seen := pos[h]; !seen {
			pos[h] = i
		}
	}

	want := requested
	if len(want) == 0 {
		want = header
	}
	dupSet := map[string]bool{}
	for _, d := range dups {
		dupSet[d] = true
	}

	var missing, bad []string
	seenWant := map[string]bool{}
	idx := make([]int, 0, len(want))
	for _, name := range want {
		i, ok := pos[name]
		switch {
		case !ok:
			missing = append(missing, name)
		case dupSet[name] || seenWant[name]:
			bad = append(bad, name)
		default:
			idx = append(idx, i)
		}
		seenWant[name] = true
	}
	if len(missing) > 0 || len(bad) > 0 {
		return nil, nil, &SchemaError{
			Table:     table,
			Missing:   missing,
			Duplicate: uniqueSorted(bad),
			Available: header,
		}
	}
	return append([]string(nil), want...), idx, nil
}

func tableDef(table string, cols []string) ddl.TableDef {
	def := ddl.TableDef{Name: table, Columns: make([]ddl.ColumnDef, 0, len(cols)+1)}
	def.Columns = append(def.Columns, ddl.ColumnDef{Name: storage.OrdinalColumn, Kind: ddl.Integer})
	for _, c := range cols {
		def.Columns = append(def.Columns, ddl.ColumnDef{Name: c, Kind: ddl.Text})
	}
	return def
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	set := map[string]struct{}{}
	for _, s := range in {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
