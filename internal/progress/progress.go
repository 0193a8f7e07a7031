// Package progress is the reporting sink for long-running stages. Stages emit
// periodic Events and one terminal Done event; reporters never feed anything
// back into the pipeline.
package progress

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"tableflow/internal/metrics"
)

// Event is a progress snapshot of one stage.
type Event struct {
	Stage string // "load", "normalize"
	Table string

	Lines int64 // records consumed so far, bad ones included
	Rows  int64 // records written
	Bad   int64 // records skipped as malformed

	Bytes int64 // raw input bytes consumed; 0 when not applicable
	Total int64 // raw input size; <= 0 when unknown

	Elapsed   time.Duration
	Delimiter string
	Encoding  string

	Done bool
}

// Percent returns completion in [0,100] when the total size is known.
func (e Event) Percent() (float64, bool) {
	if e.Total <= 0 {
		return 0, false
	}
	p := float64(e.Bytes) * 100 / float64(e.Total)
	if p > 100 {
		p = 100
	}
	return p, true
}

// Rate renders throughput: bytes per second when byte positions are known,
// records per second otherwise.
func (e Event) Rate() string {
	secs := e.Elapsed.Seconds()
	if secs <= 0 {
		return "n/a"
	}
	if e.Total > 0 && e.Bytes > 0 {
		return humanize.Bytes(uint64(float64(e.Bytes)/secs)) + "/s"
	}
	return humanize.Comma(int64(float64(e.Lines)/secs)) + " lines/s"
}

// Reporter receives progress events.
type Reporter interface {
	Report(Event)
}

// Func adapts a function to Reporter.
type Func func(Event)

func (f Func) Report(e Event) { f(e) }

// Discard drops every event.
var Discard Reporter = Func(func(Event) {})

// Multi fans an event out to several reporters in order.
type Multi []Reporter

func (m Multi) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

// Log writes one line per event through a *log.Logger (log.Default when nil).
//
//	[LOAD 42.1%] lines=1,200,000 bad=3 rate=12 MB/s elapsed=8s sep="\t" enc=utf-8 table=raw
//	[LOAD DONE] lines=2,850,112 bad=3 elapsed=19s table=raw
type Log struct {
	Logger *log.Logger
}

func (l Log) Report(e Event) {
	lg := l.Logger
	if lg == nil {
		lg = log.Default()
	}
	lg.Print(Format(e))
}

// Format renders e in the Log line format.
func Format(e Event) string {
	stage := strings.ToUpper(e.Stage)
	elapsed := e.Elapsed.Truncate(time.Second)
	if e.Done {
		return fmt.Sprintf("[%s DONE] lines=%s bad=%s elapsed=%s table=%s",
			stage, humanize.Comma(e.Lines), humanize.Comma(e.Bad), elapsed, e.Table)
	}
	head := stage
	if p, ok := e.Percent(); ok {
		head = fmt.Sprintf("%s %.1f%%", stage, p)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] lines=%s bad=%s rate=%s elapsed=%s",
		head, humanize.Comma(e.Lines), humanize.Comma(e.Bad), e.Rate(), elapsed)
	if e.Delimiter != "" {
		fmt.Fprintf(&sb, " sep=%q", e.Delimiter)
	}
	if e.Encoding != "" {
		fmt.Fprintf(&sb, " enc=%s", e.Encoding)
	}
	fmt.Fprintf(&sb, " table=%s", e.Table)
	return sb.String()
}

// Metrics records row counts from Done events through the metrics package.
// Rows are counted under the stage's kind ("loaded" for load, "normalized"
// for normalize); skipped records under "bad".
type Metrics struct {
	Job string
}

func (m Metrics) Report(e Event) {
	if !e.Done {
		return
	}
	kind := e.Stage
	switch e.Stage {
	case "load":
		kind = "loaded"
	case "normalize":
		kind = "normalized"
	}
	metrics.RecordRows(m.Job, kind, e.Rows)
	metrics.RecordRows(m.Job, "bad", e.Bad)
}
