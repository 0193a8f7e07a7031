package probe

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultEncodings is the fallback order tried after a preferred encoding.
// latin1 maps every byte, so with the default list detection always succeeds.
var DefaultEncodings = []string{"utf-8-sig", "utf-8", "cp932", "latin1"}

// aliases covers the names used in job files; anything else goes through the
// IANA registry.
var aliases = map[string]encoding.Encoding{
	"utf-8":        unicode.UTF8,
	"utf8":         unicode.UTF8,
	"utf-8-sig":    unicode.UTF8BOM,
	"utf-8-bom":    unicode.UTF8BOM,
	"cp932":        japanese.ShiftJIS,
	"ms932":        japanese.ShiftJIS,
	"windows-31j":  japanese.ShiftJIS,
	"shift_jis":    japanese.ShiftJIS,
	"sjis":         japanese.ShiftJIS,
	"euc-jp":       japanese.EUCJP,
	"latin1":       charmap.ISO8859_1,
	"latin-1":      charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"cp1252":       charmap.Windows1252,
	"windows-1252": charmap.Windows1252,
	"utf-16":       unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
}

// LookupEncoding resolves an encoding name (case-insensitive).
func LookupEncoding(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if enc, ok := aliases[key]; ok {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(key)
	if err != nil {
		return nil, fmt.Errorf("probe: unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("probe: unsupported encoding %q", name)
	}
	return enc, nil
}

// NewDecoder wraps r so that it yields UTF-8 decoded from the named encoding.
// UTF-8 input is not transformed: invalid bytes reach the caller as they are
// so FieldCheck can reject them. A leading BOM is dropped for utf-8-sig.
func NewDecoder(r io.Reader, name string) (io.Reader, error) {
	enc, err := LookupEncoding(name)
	if err != nil {
		return nil, err
	}
	switch enc {
	case unicode.UTF8:
		return r, nil
	case unicode.UTF8BOM:
		br := bufio.NewReader(r)
		if b, err := br.Peek(len(utf8BOM)); err == nil && string(b) == utf8BOM {
			_, _ = br.Discard(len(utf8BOM))
		}
		return br, nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

const utf8BOM = "\uFEFF"

// FieldCheck returns the test every field of a record read through
// NewDecoder(name) must pass. UTF-8 fields must be valid UTF-8. Other
// encodings are decoded by x/text, which writes U+FFFD for bytes it cannot
// map. The legacy encodings cannot express U+FFFD themselves, so a
// replacement character marks an undecodable record. UTF-16 input holding a
// literal U+FFFD is rejected as well.
func FieldCheck(name string) (func(string) bool, error) {
	enc, err := LookupEncoding(name)
	if err != nil {
		return nil, err
	}
	if enc == unicode.UTF8 || enc == unicode.UTF8BOM {
		return utf8.ValidString, nil
	}
	return func(s string) bool {
		return utf8.ValidString(s) && !strings.ContainsRune(s, utf8.RuneError)
	}, nil
}

// decodeStrict decodes sample with the named encoding and rejects output that
// required replacement characters.
func decodeStrict(sample []byte, name string) (string, error) {
	enc, err := LookupEncoding(name)
	if err != nil {
		return "", err
	}
	if enc == unicode.UTF8 || enc == unicode.UTF8BOM {
		if !utf8.Valid(sample) {
			return "", fmt.Errorf("invalid utf-8")
		}
		return strings.TrimPrefix(string(sample), "\uFEFF"), nil
	}
	out, err := enc.NewDecoder().Bytes(sample)
	if err != nil {
		return "", err
	}
	if strings.ContainsRune(string(out), utf8.RuneError) {
		return "", fmt.Errorf("undecodable bytes")
	}
	return string(out), nil
}
