// Package config defines the job file model: which store to open, which file
// to load, how to normalize it, and which pipelines to run over the result.
//
// Job files are JSON or YAML (chosen by extension). Pipeline steps are flat
// objects whose "op" selects the operation; every other key lands in an
// Options bag that the step conversion reads with typed accessors.
//
// Example (YAML, trimmed):
//
//	store:  { kind: sqlite, dsn: work.db }
//	source: { path: declarations.csv.gz, table: raw }
//	normalize: { to: norm }
//	pipelines:
//	  - name: lte_essential
//	    output: [PUBL_NUMBER, TS]
//	    steps:
//	      - { op: eq, column: 4G, value: 1 }
//	      - { op: concat, columns: [TGPP_TYPE, TGPP_NUMBER], name: TS, sep: "_" }
//	      - { op: dedup, column: PUBL_NUMBER }
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"tableflow/internal/normalize"
)

// Job is the top-level object of a job file.
type Job struct {
	// Name labels metrics and log lines.
	Name      string         `json:"name" yaml:"name"`
	Store     Store          `json:"store" yaml:"store"`
	Source    Source         `json:"source" yaml:"source"`
	Normalize *NormalizeStep `json:"normalize,omitempty" yaml:"normalize,omitempty"`
	Pipelines []Pipeline     `json:"pipelines" yaml:"pipelines"`
	Runtime   RuntimeConfig  `json:"runtime" yaml:"runtime"`
}

// Store selects the backing store.
type Store struct {
	// Kind is a registered storage kind: sqlite, postgres, mssql, mysql.
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`
}

// Source is the delimited file to load.
type Source struct {
	Path string `json:"path" yaml:"path"`
	// Table defaults to DefaultRawTable.
	Table string `json:"table" yaml:"table"`
	// Columns restricts the load; empty loads the whole header.
	Columns []string `json:"columns,omitempty" yaml:"columns,omitempty"`
	// Delimiter accepts a single character or tab/comma/semicolon/pipe.
	// Empty means sniff.
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	// Encoding empty means sniff.
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
}

// DefaultRawTable is the table a source loads into when none is named.
const DefaultRawTable = "raw"

// NormalizeStep enables normalization of the loaded table.
type NormalizeStep struct {
	// To names the output table; empty means "<source>__norm".
	To string `json:"to,omitempty" yaml:"to,omitempty"`
	// Rules replaces the default rule set when present.
	Rules *normalize.Rules `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// Pipeline is one chain of operations materialized into its own table.
type Pipeline struct {
	// Name is also the destination table name.
	Name string `json:"name" yaml:"name"`
	// From names the input: an earlier pipeline, the raw or normalized table,
	// or empty for the last table produced before the pipelines run.
	From   string   `json:"from,omitempty" yaml:"from,omitempty"`
	Output []string `json:"output,omitempty" yaml:"output,omitempty"`
	Steps  []Step   `json:"steps" yaml:"steps"`
}

// Step is one operation. Op selects it; the remaining keys are its options.
type Step struct {
	Op      string
	Options Options
}

// RuntimeConfig tunes batching and progress reporting.
type RuntimeConfig struct {
	BatchSize     int   `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	PageSize      int   `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	ProgressEvery int64 `json:"progress_every,omitempty" yaml:"progress_every,omitempty"`
}

// RawTable returns the configured raw table name or DefaultRawTable.
func (s Source) RawTable() string {
	if strings.TrimSpace(s.Table) == "" {
		return DefaultRawTable
	}
	return s.Table
}

// NormalizedTable is the table normalization writes, or "" when disabled.
func (j Job) NormalizedTable() string {
	if j.Normalize == nil {
		return ""
	}
	if j.Normalize.To != "" {
		return j.Normalize.To
	}
	return j.Source.RawTable() + normalize.DestSuffix
}

// NormalizeRules returns the configured rules or the defaults.
func (j Job) NormalizeRules() normalize.Rules {
	if j.Normalize != nil && j.Normalize.Rules != nil {
		return *j.Normalize.Rules
	}
	return normalize.DefaultRules()
}

// Load reads a job file, choosing YAML for .yaml/.yml and JSON otherwise.
func Load(path string) (Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return Job{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	j, err := Decode(f, format)
	if err != nil {
		return Job{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return j, nil
}

// Decode reads a job in the given format ("json" or "yaml"). Unknown JSON
// fields are rejected.
func Decode(r io.Reader, format string) (Job, error) {
	var j Job
	switch format {
	case "json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&j); err != nil {
			return Job{}, err
		}
	case "yaml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&j); err != nil && err != io.EOF {
			return Job{}, err
		}
	default:
		return Job{}, fmt.Errorf("unknown job format %q", format)
	}
	return j, nil
}

func (s *Step) fromMap(m map[string]any) error {
	op, _ := m["op"].(string)
	if strings.TrimSpace(op) == "" {
		return fmt.Errorf("step is missing \"op\"")
	}
	delete(m, "op")
	s.Op = op
	s.Options = Options(m)
	return nil
}

// UnmarshalJSON flattens {"op": ..., ...} into Op and Options.
func (s *Step) UnmarshalJSON(b []byte) error {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return err
	}
	return s.fromMap(normalizeNumbers(m).(map[string]any))
}

// UnmarshalYAML flattens a step mapping into Op and Options.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	return s.fromMap(normalizeNumbers(m).(map[string]any))
}

// MarshalJSON writes the flat form back.
func (s Step) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Options)+1)
	for k, v := range s.Options {
		m[k] = v
	}
	m["op"] = s.Op
	return json.Marshal(m)
}

// normalizeNumbers turns json.Number and YAML integers into int64 when
// integral and float64 otherwise, recursively.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, vv := range x {
			x[k] = normalizeNumbers(vv)
		}
		return x
	case []any:
		for i, vv := range x {
			x[i] = normalizeNumbers(vv)
		}
		return x
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case int:
		return int64(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	default:
		return v
	}
}

// Options is a small helper to fetch typed values from free-form step maps.
// It performs only minimal coercion and returns the provided default when a
// key is absent or of an unexpected type.
type Options map[string]any

// Has reports whether key is present, even with a null value.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Int returns the integer value for key or def. Integral floats are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case int64:
			return int(n)
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is a list of
// strings. Non-string elements are skipped. Missing keys return nil.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Strings is the strict form of StringSlice: every element must be a
// string. The error names the first offending index.
func (o Options) Strings(key string) ([]string, error) {
	switch vv := o[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return vv, nil
	case []any:
		out := make([]string, len(vv))
		for i, x := range vv {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string, got %T", key, i, x)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a list of strings, got %T", key, vv)
	}
}

// Slice returns the list value for key, or nil.
func (o Options) Slice(key string) []any {
	if v, ok := o[key].([]any); ok {
		return v
	}
	return nil
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	return o[key]
}

// Sub returns the nested object at key as Options, or nil.
func (o Options) Sub(key string) Options {
	if m, ok := o[key].(map[string]any); ok {
		return Options(m)
	}
	return nil
}
