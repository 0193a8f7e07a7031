package probe

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/text/encoding/japanese"
)

func writeSample(t *testing.T, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "sample.csv")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return p
}

func TestGuessDelimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want rune
	}{
		{"comma wins", "a,b,c\n1,2,3\n", ','},
		{"tab wins", "a\tb\tc\n", '\t'},
		{"tab wins ties", "a\tb,c\n", '\t'},
		{"semicolon beats later comma on tie", "a;b,c\n", ';'},
		{"pipe", "a|b|c|d\n", '|'},
		{"nothing defaults to tab", "abc\n", '\t'},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := GuessDelimiter(tt.text); got != tt.want {
				t.Fatalf("GuessDelimiter(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSniffEncodings(t *testing.T) {
	t.Parallel()

	sjis, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte("名前\t値\n山田\t1\n"))
	if err != nil {
		t.Fatalf("encode shift_jis: %v", err)
	}

	tests := []struct {
		name       string
		data       []byte
		opt        SniffOptions
		wantEnc    string
		wantDelim  rune
		wantHeader []string
	}{
		{
			name:       "utf-8 with BOM",
			data:       []byte("\xef\xbb\xbf id , name\n1,a\n"),
			wantEnc:    "utf-8-sig",
			wantDelim:  ',',
			wantHeader: []string{"id", "name"},
		},
		{
			name:       "shift_jis falls back to cp932",
			data:       sjis,
			wantEnc:    "cp932",
			wantDelim:  '\t',
			wantHeader: []string{"名前", "値"},
		},
		{
			name:       "latin1 catches the rest",
			data:       []byte("caf\xe9;x\n1;2\n"),
			wantEnc:    "latin1",
			wantDelim:  ';',
			wantHeader: []string{"café", "x"},
		},
		{
			name:       "preferred encoding is tried first",
			data:       []byte("a|b\n"),
			opt:        SniffOptions{Encoding: "latin1"},
			wantEnc:    "latin1",
			wantDelim:  '|',
			wantHeader: []string{"a", "b"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := Sniff(context.Background(), writeSample(t, tt.data), tt.opt)
			if err != nil {
				t.Fatalf("Sniff: %v", err)
			}
			if f.Encoding != tt.wantEnc {
				t.Errorf("Encoding = %q, want %q", f.Encoding, tt.wantEnc)
			}
			if f.Delimiter != tt.wantDelim {
				t.Errorf("Delimiter = %q, want %q", f.Delimiter, tt.wantDelim)
			}
			if !reflect.DeepEqual(f.Header, tt.wantHeader) {
				t.Errorf("Header = %q, want %q", f.Header, tt.wantHeader)
			}
		})
	}
}

func TestSniffDecodeErrorListsCandidates(t *testing.T) {
	t.Parallel()

	p := writeSample(t, []byte("caf\xe9,x\n"))
	_, err := Sniff(context.Background(), p, SniffOptions{Fallbacks: []string{"utf-8", "UTF-8"}})

	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Sniff error = %v, want *DecodeError", err)
	}
	if de.Path != p {
		t.Errorf("DecodeError.Path = %q, want %q", de.Path, p)
	}
	if !reflect.DeepEqual(de.Tried, []string{"utf-8"}) {
		t.Errorf("DecodeError.Tried = %v, want [utf-8]", de.Tried)
	}
	if !strings.Contains(err.Error(), "[utf-8]") {
		t.Errorf("Error() = %q", err.Error())
	}
}

// TestSniffCutsSampleAtNewline makes sure a multi-byte rune split by the
// sample boundary does not push detection off utf-8.
func TestSniffCutsSampleAtNewline(t *testing.T) {
	t.Parallel()

	line := "名前,値\n"
	data := []byte(strings.Repeat(line, 50))
	f, err := Sniff(context.Background(), writeSample(t, data), SniffOptions{SampleBytes: len(line) + 2})
	if err != nil {
		t.Fatalf("Sniff: %v", err)
	}
	if f.Encoding != "utf-8-sig" {
		t.Fatalf("Encoding = %q, want utf-8-sig", f.Encoding)
	}
}

func TestParseDelimiter(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]rune{`\t`: '\t', "tab": '\t', ";": ';', "pipe": '|', "": 0} {
		got, err := ParseDelimiter(in)
		if err != nil || got != want {
			t.Errorf("ParseDelimiter(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseDelimiter(",,"); err == nil {
		t.Errorf("ParseDelimiter(\",,\") error = nil")
	}
}

func TestLookupEncodingIANA(t *testing.T) {
	t.Parallel()

	if _, err := LookupEncoding("ISO-8859-15"); err != nil {
		t.Fatalf("LookupEncoding(ISO-8859-15): %v", err)
	}
	if _, err := LookupEncoding("no-such-charset"); err == nil {
		t.Fatalf("LookupEncoding(no-such-charset) error = nil")
	}
}

func TestNewDecoderKeepsUTF8BytesAndDropsBOM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		enc  string
		in   string
		want string
	}{
		{"utf-8", "a\xffb", "a\xffb"},
		{"utf-8-sig", "\uFEFFa\xffb", "a\xffb"},
		{"utf-8-sig", "ab", "ab"},
	}
	for _, tt := range tests {
		r, err := NewDecoder(strings.NewReader(tt.in), tt.enc)
		if err != nil {
			t.Fatalf("NewDecoder(%s): %v", tt.enc, err)
		}
		b, err := io.ReadAll(r)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != tt.want {
			t.Errorf("%s: got %q, want %q", tt.enc, b, tt.want)
		}
	}
}

func TestFieldCheck(t *testing.T) {
	t.Parallel()

	utf8Check, err := FieldCheck("utf-8")
	if err != nil {
		t.Fatal(err)
	}
	if !utf8Check("東京 \uFFFD") || utf8Check("a\xff") {
		t.Error("utf-8 check must accept valid text and reject invalid bytes")
	}

	sjisCheck, err := FieldCheck("cp932")
	if err != nil {
		t.Fatal(err)
	}
	if !sjisCheck("東京") || sjisCheck("a\uFFFD") {
		t.Error("cp932 check must reject replacement characters")
	}

	if _, err := FieldCheck("klingon"); err == nil {
		t.Error("FieldCheck(klingon) error = nil")
	}
}
