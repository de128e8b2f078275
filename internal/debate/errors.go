package debate

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine and by SessionStore implementations.
var (
	ErrSessionNotFound  = errors.New("debate: session not found")
	ErrDuplicateSession = errors.New("debate: duplicate session")
)

// DuplicateSessionError reports that a session already exists for a team.
type DuplicateSessionError struct {
	TeamID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("debate: team %q already has an active session", e.TeamID)
}

// Is lets errors.Is(err, ErrDuplicateSession) match.
func (e *DuplicateSessionError) Is(target error) bool {
	return target == ErrDuplicateSession
}

// ValidationError reports malformed caller input. The caller must resubmit.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("debate: invalid %s: %s", e.Field, e.Message)
}

// PreconditionError reports an operation invoked out of the required order.
type PreconditionError struct {
	Op      string
	Message string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("debate: %s: %s", e.Op, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func precondition(op, format string, args ...any) error {
	return &PreconditionError{Op: op, Message: fmt.Sprintf(format, args...)}
}
