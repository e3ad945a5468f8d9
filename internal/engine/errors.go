package engine

import (
	"fmt"
	"strings"

	"suratline/internal/domain"
)

// RejectedError is a command that failed validation. Nothing was written.
type RejectedError struct {
	Command string
	Reason  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Command, e.Reason)
}

func reject(command, format string, args ...any) error {
	return &RejectedError{Command: command, Reason: fmt.Sprintf(format, args...)}
}

// TransitionError is a command issued from a status that does not allow it.
type TransitionError struct {
	Command string
	From    domain.Status
	Allowed []domain.Status
}

func (e *TransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("cannot %s a report in status %q (allowed from: %s)", e.Command, e.From, strings.Join(allowed, ", "))
}
