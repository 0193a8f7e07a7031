package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tableflow/internal/config"
)

const sample = "PUBL_NUMBER;TGPP_TYPE;TGPP_NUMBER;3G\n" +
	"P1;TS;36.331;1\n" +
	"P1;TS;36.331;yes\n" +
	"P2;TR;38.300;0\n"

// execute runs the command tree against a store in a fresh directory and
// returns stdout, stderr and the error.
func execute(tb testing.TB, dsn string, args ...string) (string, string, error) {
	tb.Helper()
	return executeArgs(tb, append([]string{"--dsn", dsn}, args...)...)
}

// executeArgs runs the command tree with args as given.
func executeArgs(tb testing.TB, args ...string) (string, string, error) {
	tb.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(tb testing.TB, dir, name, body string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		tb.Fatal(err)
	}
	return path
}

func TestLoadColumnsQuery(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "work.db")
	csv := writeFile(t, dir, "in.csv", sample)

	out, _, err := execute(t, dsn, "sniff", csv)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if !strings.Contains(out, "delimiter:   ;") || !strings.Contains(out, "TGPP_NUMBER") {
		t.Errorf("sniff output:\n%s", out)
	}

	out, _, err = execute(t, dsn, "load", csv, "--table", "decl")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(out, "loaded 3 rows into decl") {
		t.Errorf("load output: %s", out)
	}

	out, _, err = execute(t, dsn, "columns", "--table", "decl")
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	for _, want := range []string{"__ordinal", "PUBL_NUMBER", "3G"} {
		if !strings.Contains(out, want) {
			t.Errorf("columns output lacks %s:\n%s", want, out)
		}
	}

	out, _, err = execute(t, dsn, "query", `SELECT COUNT(*) AS n FROM decl WHERE "PUBL_NUMBER" = ?`, "P1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(out, "| 2 ") {
		t.Errorf("query output:\n%s", out)
	}

	out, _, err = execute(t, dsn, "normalize", "--from", "decl")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !strings.Contains(out, "into decl__norm") {
		t.Errorf("normalize output: %s", out)
	}
}

func TestRunAndPlanJob(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "work.db")
	csv := writeFile(t, dir, "in.csv", sample)
	job := writeFile(t, dir, "job.yaml", `
name: cli-test
source:
  path: `+csv+`
normalize: {}
pipelines:
  - name: essential_3g
    output: [PUBL_NUMBER, TGPP_SPEC]
    steps:
      - op: eq
        column: 3G
        value: 1
      - op: concat
        columns: [TGPP_TYPE, TGPP_NUMBER]
        name: TGPP_SPEC
        sep: "_"
      - op: dedup
        column: PUBL_NUMBER
`)

	out, _, err := execute(t, dsn, "plan", job)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !strings.Contains(out, "-- essential_3g <- raw__norm") || !strings.Contains(out, "ROW_NUMBER()") {
		t.Errorf("plan output:\n%s", out)
	}

	out, _, err = execute(t, dsn, "run", job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "loaded 3 rows") || !strings.Contains(out, "essential_3g") {
		t.Errorf("run output:\n%s", out)
	}

	out, _, err = execute(t, dsn, "query", `SELECT "TGPP_SPEC" FROM essential_3g`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(out, "TS_36.331") {
		t.Errorf("query output:\n%s", out)
	}
}

func TestInvalidJobExitsWithValidationCode(t *testing.T) {
	dir := t.TempDir()
	job := writeFile(t, dir, "job.json", `{"source": {"path": ""}, "pipelines": [{"name": "x", "steps": [{"op": "explode"}]}]}`)

	_, errOut, err := execute(t, filepath.Join(dir, "work.db"), "run", "--validate", job)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := ExitCode(err); got != ExitValidation {
		t.Errorf("exit code = %d, want %d", got, ExitValidation)
	}
	if !strings.Contains(errOut, "source.path") || !strings.Contains(errOut, `unknown op "explode"`) {
		t.Errorf("stderr:\n%s", errOut)
	}
}

func TestUnknownMetricsBackend(t *testing.T) {
	_, _, err := execute(t, filepath.Join(t.TempDir(), "w.db"), "--metrics-backend", "statsd", "columns")
	if err == nil || ExitCode(err) != ExitValidation {
		t.Fatalf("err = %v", err)
	}
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("TABLEFLOW_BATCH_SIZE", "7")
	var s Settings
	cmd := NewRootCommand()
	if err := cmd.ParseFlags(nil); err != nil {
		t.Fatal(err)
	}
	if err := s.load(cmd.Flags()); err != nil {
		t.Fatal(err)
	}
	if s.BatchSize != 7 {
		t.Errorf("BatchSize = %d", s.BatchSize)
	}
	if s.Store != "sqlite" || s.DSN != "tableflow.db" {
		t.Errorf("settings = %+v", s)
	}
}

func TestRunUsesJobStore(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	dsn := filepath.Join(dir, "job.db")
	csv := writeFile(t, dir, "in.csv", sample)
	job := writeFile(t, dir, "job.yaml", `
name: job-store
store:
  kind: sqlite
  dsn: `+dsn+`
source:
  path: `+csv+`
  table: decl
pipelines:
  - name: by_type
    output: [PUBL_NUMBER]
    steps:
      - op: eq
        column: TGPP_TYPE
        value: TS
`)

	if _, _, err := executeArgs(t, "run", job); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tableflow.db")); !os.IsNotExist(err) {
		t.Errorf("default store was created: %v", err)
	}

	out, _, err := execute(t, dsn, "query", "SELECT COUNT(*) AS n FROM by_type")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(out, "| 2 ") {
		t.Errorf("query output:\n%s", out)
	}
	out, _, err = execute(t, dsn, "columns", "--table", "decl")
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	if !strings.Contains(out, "TGPP_NUMBER") {
		t.Errorf("columns output:\n%s", out)
	}
}

func TestOverlayKeepsJobValuesUnlessExplicit(t *testing.T) {
	job := func() *config.Job {
		return &config.Job{
			Store:   config.Store{Kind: "sqlite", DSN: "from-job.db"},
			Runtime: config.RuntimeConfig{BatchSize: 50, PageSize: 10, ProgressEvery: 5},
		}
	}
	overlay := func(t *testing.T, args ...string) *config.Job {
		t.Helper()
		var s Settings
		cmd := NewRootCommand()
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatal(err)
		}
		if err := s.load(cmd.Flags()); err != nil {
			t.Fatal(err)
		}
		j := job()
		s.Overlay(j)
		return j
	}

	t.Run("defaults", func(t *testing.T) {
		j := overlay(t)
		if j.Store.DSN != "from-job.db" || j.Runtime.BatchSize != 50 || j.Runtime.PageSize != 10 || j.Runtime.ProgressEvery != 5 {
			t.Errorf("job = %+v", j)
		}
		if j.Name != "tableflow" {
			t.Errorf("Name = %q", j.Name)
		}
	})
	t.Run("flag", func(t *testing.T) {
		j := overlay(t, "--batch-size", "9")
		if j.Runtime.BatchSize != 9 || j.Store.DSN != "from-job.db" {
			t.Errorf("job = %+v", j)
		}
	})
	t.Run("environment", func(t *testing.T) {
		t.Setenv("TABLEFLOW_DSN", "from-env.db")
		j := overlay(t)
		if j.Store.DSN != "from-env.db" || j.Runtime.BatchSize != 50 {
			t.Errorf("job = %+v", j)
		}
	})
}
