// Package csv streams delimited records for the loader.
//
// It wraps encoding/csv with the accounting the loader needs: blank physical
// lines are surfaced as empty records instead of being skipped, malformed
// records are reported without stopping the stream, and the header is
// cleaned of BOM and whitespace.
package csv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Reader yields records in file order.
type Reader struct {
	cr       *csv.Reader
	lines    *lineCounter
	lastLine int // last physical line consumed by a record or error
	queue    []item
	header   bool
}

type item struct {
	rec []string
	err error
}

// NewReader returns a Reader splitting r on delim. Quotes follow RFC 4180;
// records may have any number of fields.
func NewReader(r io.Reader, delim rune) *Reader {
	lc := &lineCounter{r: r}
	cr := csv.NewReader(lc)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	return &Reader{cr: cr, lines: lc}
}

// ErrNoHeader is returned by Header for empty input.
var ErrNoHeader = errors.New("csv: missing header row")

// Header reads and cleans the first record. It must be called once, before Next.
func (r *Reader) Header() ([]string, error) {
	if r.header {
		return nil, fmt.Errorf("csv: header already read")
	}
	r.header = true
	rec, err := r.cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	r.lastLine = r.endLine(rec)
	return CleanHeader(rec), nil
}

// Next returns the next data record.
//
// A blank line yields a record with zero fields. A malformed record yields a
// *csv.ParseError; the Reader remains usable and the following call continues
// after the malformed record. io.EOF marks the end of input.
func (r *Reader) Next() ([]string, error) {
	if len(r.queue) > 0 {
		it := r.queue[0]
		r.queue = r.queue[1:]
		return it.rec, it.err
	}

	rec, err := r.cr.Read()
	if errors.Is(err, io.EOF) {
		// encoding/csv skips blank lines; those after the last record only
		// show up in the physical line count.
		total := r.lines.total()
		r.fillBlanks(total + 1)
		if total > r.lastLine {
			r.lastLine = total
		}
		if len(r.queue) > 0 {
			return r.enqueue(item{err: io.EOF})
		}
		return nil, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if !errors.As(err, &pe) {
			return nil, err
		}
		r.fillBlanks(pe.StartLine)
		r.lastLine = pe.Line
		return r.enqueue(item{err: err})
	}

	line, _ := r.cr.FieldPos(0)
	r.fillBlanks(line)
	r.lastLine = r.endLine(rec)
	return r.enqueue(item{rec: rec})
}

// fillBlanks queues one empty record for each line skipped by encoding/csv
// between the previous record and a record starting at line start.
func (r *Reader) fillBlanks(start int) {
	for i := r.lastLine + 1; i < start; i++ {
		r.queue = append(r.queue, item{rec: []string{}})
	}
}

func (r *Reader) enqueue(it item) ([]string, error) {
	r.queue = append(r.queue, it)
	head := r.queue[0]
	r.queue = r.queue[1:]
	return head.rec, head.err
}

// endLine is the physical line on which rec ended. Quoted fields may span
// lines; only the last field can extend past its own start line.
func (r *Reader) endLine(rec []string) int {
	last := len(rec) - 1
	line, _ := r.cr.FieldPos(last)
	return line + strings.Count(rec[last], "\n")
}

// lineCounter counts the physical lines of everything read through it.
type lineCounter struct {
	r        io.Reader
	newlines int
	any      bool
	lastNL   bool
}

func (c *lineCounter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.newlines += bytes.Count(p[:n], []byte{'\n'})
		c.any = true
		c.lastNL = p[n-1] == '\n'
	}
	return n, err
}

// total is the number of physical lines seen, counting an unterminated
// final line.
func (c *lineCounter) total() int {
	if c.any && !c.lastNL {
		return c.newlines + 1
	}
	return c.newlines
}

// Project maps rec onto the requested source indexes, padding short records
// with empty strings. Extra fields are ignored.
func Project(rec []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, si := range idx {
		if si < len(rec) {
			out[i] = rec[si]
		}
	}
	return out
}

// IsMalformed reports whether err is a per-record parse failure that the
// caller should count and skip rather than abort on.
func IsMalformed(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}
