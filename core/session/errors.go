package session

import (
	"errors"
	"fmt"
)

var (
	// ErrStage means the operation is not permitted in the session's current
	// stage.
	ErrStage = errors.New("operation not permitted in current stage")
	// ErrSaveInFlight means a save is awaiting the persistence store; the
	// session rejects mutations until it settles.
	ErrSaveInFlight = errors.New("save in flight")
	// ErrNotSavable means a blocking conflict or a missing justification or
	// acknowledgment prevents saving.
	ErrNotSavable = errors.New("session is not savable")
	// ErrNoChanges means the justification stage was entered without any
	// queued change and without the review-only path.
	ErrNoChanges = errors.New("no changes to justify")
	// ErrTerminal means the session was already saved or discarded.
	ErrTerminal = errors.New("session is closed")
	// ErrNoSaver means no persistence collaborator was configured.
	ErrNoSaver = errors.New("no saver configured")
)

// ValidationError reports a malformed mutation. The working state is left
// unchanged and the session remains fully editable.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid mutation: " + e.Reason
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
