package config

import (
	"fmt"
	"strings"

	"tableflow/internal/probe"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the job
// (e.g. "pipelines[1].steps[0].column").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateJob statically checks a decoded Job. It does not touch the file
// system or the store; column-level checks happen when plans are compiled.
func ValidateJob(j Job) []Issue {
	var issues []Issue
	if strings.TrimSpace(j.Name) == "" {
		issues = append(issues, Issue{SeverityWarning, "name", "name is empty; metrics will use the default job label"})
	}
	issues = append(issues, validateStore(j.Store)...)
	issues = append(issues, validateSource(j.Source)...)
	issues = append(issues, validatePipelines(j)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	return issues
}

var knownStores = map[string]struct{}{"sqlite": {}, "postgres": {}, "mssql": {}, "mysql": {}}

func validateStore(s Store) []Issue {
	var issues []Issue
	if s.Kind != "" {
		if _, ok := knownStores[s.Kind]; !ok {
			issues = append(issues, Issue{SeverityError, "store.kind", fmt.Sprintf("unknown store kind %q", s.Kind)})
		}
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "store.dsn", "store.dsn must not be empty"})
	}
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Path) == "" {
		issues = append(issues, Issue{SeverityError, "source.path", "source.path must not be empty"})
	}
	if s.Delimiter != "" {
		if _, err := probe.ParseDelimiter(s.Delimiter); err != nil {
			issues = append(issues, Issue{SeverityError, "source.delimiter", err.Error()})
		}
	}
	if s.Encoding != "" {
		if _, err := probe.LookupEncoding(s.Encoding); err != nil {
			issues = append(issues, Issue{SeverityError, "source.encoding", err.Error()})
		}
	}
	seen := map[string]bool{}
	for i, c := range s.Columns {
		if seen[c] {
			issues = append(issues, Issue{SeverityError, fmt.Sprintf("source.columns[%d]", i), fmt.Sprintf("column %q listed twice", c)})
		}
		seen[c] = true
	}
	return issues
}

func validatePipelines(j Job) []Issue {
	var issues []Issue
	if len(j.Pipelines) == 0 {
		return append(issues, Issue{SeverityWarning, "pipelines", "no pipelines configured; only load and normalize will run"})
	}

	tables := map[string]bool{j.Source.RawTable(): true}
	if t := j.NormalizedTable(); t != "" {
		tables[t] = true
	}
	for i, p := range j.Pipelines {
		base := fmt.Sprintf("pipelines[%d]", i)
		switch {
		case strings.TrimSpace(p.Name) == "":
			issues = append(issues, Issue{SeverityError, base + ".name", "pipeline name must not be empty"})
		case tables[p.Name]:
			issues = append(issues, Issue{SeverityError, base + ".name", fmt.Sprintf("table %q is already produced earlier in the job", p.Name)})
		}
		if p.From != "" && !tables[p.From] {
			issues = append(issues, Issue{SeverityError, base + ".from", fmt.Sprintf("%q is not produced before this pipeline", p.From)})
		}
		if len(p.Steps) == 0 {
			issues = append(issues, Issue{SeverityWarning, base + ".steps", "no steps; the input is copied as-is"})
		}
		for k, s := range p.Steps {
			issues = append(issues, validateStep(fmt.Sprintf("%s.steps[%d]", base, k), s)...)
		}
		tables[p.Name] = true
	}
	return issues
}

func validateStep(path string, s Step) []Issue {
	var issues []Issue
	op, ok := CanonicalOp(s.Op)
	if !ok {
		return append(issues, Issue{SeverityError, path + ".op", fmt.Sprintf("unknown op %q", s.Op)})
	}
	needColumn := func() {
		if strings.TrimSpace(s.Options.String("column", "")) == "" {
			issues = append(issues, Issue{SeverityError, path + ".column", op + " requires a column"})
		}
	}
	switch op {
	case "eq", "ne":
		needColumn()
		if !s.Options.Has("value") {
			issues = append(issues, Issue{SeverityWarning, path + ".value", "no value given; comparing against NULL"})
		}
	case "all_eq":
		if len(s.Options.Slice("conditions")) == 0 {
			issues = append(issues, Issue{SeverityWarning, path + ".conditions", "no conditions; every row passes"})
		}
	case "in":
		needColumn()
		if len(s.Options.Slice("values")) == 0 {
			issues = append(issues, Issue{SeverityWarning, path + ".values", "empty value set; no row passes"})
		}
	case "date_range":
		needColumn()
		if s.Options.String("start", "") == "" && s.Options.String("end", "") == "" {
			issues = append(issues, Issue{SeverityWarning, path, "date range without bounds; every row passes"})
		}
	case "concat":
		if strings.TrimSpace(s.Options.String("name", "")) == "" {
			issues = append(issues, Issue{SeverityError, path + ".name", "concat requires a name"})
		}
		if _, err := s.Options.Strings("columns"); err != nil {
			issues = append(issues, Issue{SeverityError, path + ".columns", err.Error()})
		} else if len(s.Options.StringSlice("columns")) == 0 {
			issues = append(issues, Issue{SeverityWarning, path + ".columns", "concat without input columns yields empty strings"})
		}
	case "dedup":
		needColumn()
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.BatchSize < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.batch_size", "batch_size must not be negative"})
	}
	if r.PageSize < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.page_size", "page_size must not be negative"})
	}
	if r.ProgressEvery < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.progress_every", "progress_every must not be negative"})
	}
	return issues
}
