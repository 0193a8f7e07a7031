package main

import (
	"errors"
	"fmt"
	"io"

	"tableflow/internal/config"
)

// Exit codes.
const (
	ExitFailure    = 1 // load, store or execution failure
	ExitValidation = 2 // the job file or a pipeline is invalid
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode extracts the exit code from err, defaulting to ExitFailure.
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFailure
}

// reportIssues prints every issue and returns an ExitValidation error when
// any of them is an error.
func reportIssues(w io.Writer, path string, issues []config.Issue) error {
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return &ExitError{Code: ExitValidation, Err: fmt.Errorf("job %s is invalid", path)}
	}
	return nil
}
