// Package probe guesses the field delimiter and text encoding of a delimited
// file from a small sample at its start.
//
// The probe is read-only: it opens the file, reads at most SampleBytes of
// (decompressed) content and closes it again.
package probe

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"tableflow/internal/datasource/file"
	csvparse "tableflow/internal/parser/csv"
)

// DefaultSampleBytes is the sample size used when SniffOptions.SampleBytes is 0.
const DefaultSampleBytes = 8192

// Delimiters are the candidate field separators in tie-break order. Tab wins
// any tie; otherwise the earlier candidate does.
var Delimiters = []rune{'\t', ';', ',', '|'}

// SniffOptions control sampling.
type SniffOptions struct {
	// SampleBytes caps how much content is read. 0 selects DefaultSampleBytes.
	SampleBytes int
	// Encoding is tried before the fallbacks when non-empty.
	Encoding string
	// Fallbacks overrides DefaultEncodings.
	Fallbacks []string
}

// Format is the sniffed layout of a delimited file.
type Format struct {
	Delimiter   rune
	Encoding    string
	Compression file.Compression
	// Header is the first record of the sample, BOM and whitespace stripped.
	Header []string
}

// DecodeError reports that no candidate encoding decoded the sample.
type DecodeError struct {
	Path  string
	Tried []string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("probe: %s: cannot decode sample with any of [%s]", e.Path, strings.Join(e.Tried, ", "))
}

// Sniff samples path and returns its delimiter, encoding and header.
func Sniff(ctx context.Context, path string, opt SniffOptions) (Format, error) {
	s, err := file.NewLocal(path).OpenStream(ctx)
	if err != nil {
		return Format{}, fmt.Errorf("probe: %w", err)
	}
	defer s.Close()

	n := opt.SampleBytes
	if n <= 0 {
		n = DefaultSampleBytes
	}
	buf := make([]byte, n)
	got, err := io.ReadFull(s, buf)
	truncated := err == nil
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Format{}, fmt.Errorf("probe: read %s: %w", path, err)
	}
	sample := buf[:got]

	// Cut to the last newline so a multi-byte sequence split by the sample
	// boundary does not fail strict decoding.
	if truncated {
		if i := bytes.LastIndexByte(sample, '\n'); i > 0 {
			sample = sample[:i+1]
		}
	}

	f, err := SniffSample(sample, opt)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Path = path
		}
		return Format{}, err
	}
	f.Compression = s.Compression()
	return f, nil
}

// SniffSample applies the detection rules to an in-memory sample.
func SniffSample(sample []byte, opt SniffOptions) (Format, error) {
	enc, text, err := DetectEncoding(sample, Candidates(opt.Encoding, opt.Fallbacks))
	if err != nil {
		return Format{}, err
	}
	delim := GuessDelimiter(text)
	return Format{
		Delimiter: delim,
		Encoding:  enc,
		Header:    sampleHeader(text, delim),
	}, nil
}

// Candidates returns the encoding names to try: preferred first, then the
// fallbacks (DefaultEncodings when nil), without duplicates.
func Candidates(preferred string, fallbacks []string) []string {
	if fallbacks == nil {
		fallbacks = DefaultEncodings
	}
	seen := map[string]bool{}
	var out []string
	for _, name := range append([]string{preferred}, fallbacks...) {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

// DetectEncoding returns the first candidate that decodes sample strictly,
// along with the decoded text.
func DetectEncoding(sample []byte, candidates []string) (string, string, error) {
	for _, name := range candidates {
		text, err := decodeStrict(sample, name)
		if err == nil {
			return name, text, nil
		}
	}
	return "", "", &DecodeError{Tried: candidates}
}

// GuessDelimiter counts each candidate in text and returns the most frequent.
// With no candidate present it returns tab.
func GuessDelimiter(text string) rune {
	best, bestCount := Delimiters[0], -1
	for _, d := range Delimiters {
		c := strings.Count(text, string(d))
		if c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}

// sampleHeader parses the first record of text, best effort.
func sampleHeader(text string, delim rune) []string {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	rec, err := r.Read()
	if err != nil {
		return nil
	}
	return csvparse.CleanHeader(rec)
}

// DelimiterName renders a delimiter for logs ("\t" becomes `\t`).
func DelimiterName(d rune) string {
	if d == '\t' {
		return `\t`
	}
	return string(d)
}

// ParseDelimiter converts a user-supplied string into a delimiter rune.
// It accepts the names "tab", "comma", "semicolon", "pipe" and the escape `\t`.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case `\t`, "tab", "\t":
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("probe: delimiter %q must be a single character", s)
	}
	return r[0], nil
}
