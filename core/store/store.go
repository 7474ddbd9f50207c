// Package store defines the persistence boundary of the engine. The engine
// never talks to a database: it hands a full-state SaveRequest to a Saver and
// interprets the error taxonomy below.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/groundctl/passplan/core/model"
)

// Saver applies a SaveRequest atomically on the backing store.
type Saver interface {
	Save(ctx context.Context, req model.SaveRequest) error
}

// ErrSaveConflict means the opportunity was mutated elsewhere since the
// session snapshot was taken. The caller decides whether to retry, overwrite
// or discard.
var ErrSaveConflict = errors.New("opportunity changed since snapshot")

// ErrValidationRejected means the server-side re-check of the allocation
// failed.
var ErrValidationRejected = errors.New("allocation rejected by server")

// TransportError wraps a network or timeout failure during save. Retrying the
// same request is safe: a SaveRequest describes full state, not a delta.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("save transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is a transient transport failure.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
