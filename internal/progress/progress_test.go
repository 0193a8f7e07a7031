package progress

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "tick with known size",
			ev: Event{Stage: "load", Table: "raw", Lines: 1200000, Bad: 3,
				Bytes: 50, Total: 200, Elapsed: 10 * time.Second, Delimiter: "\t", Encoding: "utf-8"},
			want: `[LOAD 25.0%] lines=1,200,000 bad=3 rate=5 B/s elapsed=10s sep="\t" enc=utf-8 table=raw`,
		},
		{
			name: "tick without size falls back to lines per second",
			ev:   Event{Stage: "normalize", Table: "n", Lines: 3000, Elapsed: 3 * time.Second},
			want: `[NORMALIZE] lines=3,000 bad=0 rate=1,000 lines/s elapsed=3s table=n`,
		},
		{
			name: "done",
			ev:   Event{Stage: "load", Table: "raw", Lines: 10, Bad: 1, Elapsed: 1500 * time.Millisecond, Done: true},
			want: `[LOAD DONE] lines=10 bad=1 elapsed=1s table=raw`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Format(tt.ev); got != tt.want {
				t.Fatalf("Format() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestPercentCapsAt100(t *testing.T) {
	t.Parallel()

	p, ok := Event{Bytes: 300, Total: 200}.Percent()
	if !ok || p != 100 {
		t.Fatalf("Percent() = %v, %v", p, ok)
	}
	if _, ok := (Event{Bytes: 1}).Percent(); ok {
		t.Fatalf("Percent() ok with unknown total")
	}
}

func TestMultiAndLog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var seen []Event
	r := Multi{Log{Logger: log.New(&buf, "", 0)}, nil, Func(func(e Event) { seen = append(seen, e) })}
	r.Report(Event{Stage: "load", Table: "t", Done: true})

	if len(seen) != 1 {
		t.Fatalf("Func reporter saw %d events", len(seen))
	}
	if !strings.HasPrefix(buf.String(), "[LOAD DONE]") {
		t.Fatalf("log output = %q", buf.String())
	}
}
