package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/ledgerd/internal/ir"
)

// ObserverError reports an observer that failed to accept a committed
// transition. The commit stands; the error is only logged and counted.
type ObserverError struct {
	// Observer is the observer's name.
	Observer string

	// Seq is the transition the observer rejected.
	Seq int64

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *ObserverError) Error() string {
	return fmt.Sprintf("observer %s: seq %d: %v", e.Observer, e.Seq, e.Err)
}

// Unwrap returns the underlying error.
func (e *ObserverError) Unwrap() error {
	return e.Err
}

// IsObserverError returns true if the error is an ObserverError.
// Uses errors.As to handle wrapped errors.
func IsObserverError(err error) bool {
	var oe *ObserverError
	return errors.As(err, &oe)
}

// IsRetryable reports whether resubmitting the same command may succeed.
// Only Conflict is retryable.
func IsRetryable(err error) bool {
	e, ok := ir.AsError(err)
	return ok && e.Retryable()
}

// annotate fills in the contract and choice on a transition function error
// that did not name them, so callers always see where a rule failed.
func annotate(err error, template, choice string, id ir.ContractID) error {
	e, ok := ir.AsError(err)
	if !ok {
		return fmt.Errorf("%s.%s: %w", template, choice, err)
	}
	if e.ContractID == 0 {
		e.ContractID = id
	}
	if e.Template == "" {
		e.Template = template
		e.Choice = choice
	}
	return err
}
