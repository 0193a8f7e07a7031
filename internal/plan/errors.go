package plan

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownOperation is returned for an Operation the compiler has no
	// emission rule for.
	ErrUnknownOperation = errors.New("plan: unknown operation")
	// ErrPlanUsed is returned when a Plan is claimed for a second execution.
	ErrPlanUsed = errors.New("plan: plan already executed")
)

// ValidationError reports a column that cannot be traced to the source or to
// an earlier derivation. It is raised while compiling, never at execution.
type ValidationError struct {
	Column    string
	Reason    string
	Available []string
}

func (e *ValidationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "not available"
	}
	if len(e.Available) == 0 {
		return fmt.Sprintf("plan: column %q: %s", e.Column, reason)
	}
	return fmt.Sprintf("plan: column %q: %s; available [%s]",
		e.Column, reason, strings.Join(e.Available, ", "))
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
