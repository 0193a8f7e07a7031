package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Sentinels stored for missing or unrecognized values.
const (
	MissingInt  int64 = -1
	MissingText       = "-1"
)

var missingTokens = map[string]struct{}{
	"": {}, "-1": {}, "error": {}, "err": {}, "unknown": {}, "na": {},
	"n/a": {}, "nan": {}, "null": {}, "none": {}, "?": {},
}

var (
	yesTokens = map[string]struct{}{"1": {}, "yes": {}, "y": {}, "true": {}, "t": {}, "on": {}}
	noTokens  = map[string]struct{}{"0": {}, "no": {}, "n": {}, "false": {}, "f": {}, "off": {}}
)

var (
	lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ", "\t", " ")
	multiSpace = regexp.MustCompile(` {2,}`)

	compactDate = regexp.MustCompile(`^\d{8}$`)
	looseDate   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	isoDate     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	datePunct   = strings.NewReplacer("年", "-", "月", "-", "日", "", "/", "-", ".", "-")
)

// IsMissing reports whether s is one of the missing-value tokens
// (case-insensitive, surrounding whitespace ignored).
func IsMissing(s string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// CleanText turns line breaks and tabs into spaces, collapses space runs and
// trims the result.
func CleanText(s string) string {
	s = lineBreaks.Replace(s)
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Flag maps yes-like tokens to 1, no-like tokens to 0 and anything else,
// the empty string included, to MissingInt.
func Flag(s string) int64 {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := yesTokens[s]; ok {
		return 1
	}
	if _, ok := noTokens[s]; ok {
		return 0
	}
	return MissingInt
}

// Int parses a base-10 integer. Missing tokens and parse failures yield
// MissingInt.
func Int(s string) int64 {
	s = strings.TrimSpace(s)
	if IsMissing(s) {
		return MissingInt
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return MissingInt
	}
	return n
}

// Text returns MissingText for missing tokens and s otherwise.
func Text(s string) string {
	if IsMissing(s) {
		return MissingText
	}
	return s
}

// LegalName drops commas and periods from a company name, re-collapses
// whitespace and applies Text.
func LegalName(s string) string {
	s = strings.NewReplacer(",", "", ".", "").Replace(s)
	s = multiSpace.ReplaceAllString(strings.TrimSpace(s), " ")
	return Text(s)
}

// DateOnly reduces a timestamp or locale-formatted date to YYYY-MM-DD.
//
// The date part is the first token before a space or "T". Japanese year and
// month markers and the "/" and "." separators become "-", YYYYMMDD gains
// separators and Y-M-D is zero padded. Missing values return "". Anything
// else is returned as found so it can be inspected later.
func DateOnly(s string) string {
	s = strings.TrimSpace(s)
	if IsMissing(s) {
		return ""
	}
	if i := strings.IndexAny(s, " T"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = datePunct.Replace(s)

	if compactDate.MatchString(s) {
		return s[0:4] + "-" + s[4:6] + "-" + s[6:8]
	}
	if m := looseDate.FindStringSubmatch(s); m != nil {
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return m[1] + "-" + pad2(mo) + "-" + pad2(d)
	}
	return s
}

// IsISODate reports whether s is exactly YYYY-MM-DD shaped.
func IsISODate(s string) bool { return isoDate.MatchString(s) }

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
