package dataservice

import (
	"errors"
	"fmt"
)

var (
	// ErrOperationFailed matches every *OperationError.
	ErrOperationFailed = errors.New("dataservice: operation failed")

	// ErrServiceClosed is returned by every operation after Close.
	ErrServiceClosed = errors.New("dataservice: service is closed")

	// ErrInvalidIdentifier is returned for table, column or sort names that are
	// not plain SQL identifiers.
	ErrInvalidIdentifier = errors.New("dataservice: invalid identifier")
)

// OperationError reports an operation that failed after exhausting retries or
// on a permanent error. Both ErrOperationFailed and the cause match errors.Is.
type OperationError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("dataservice: %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *OperationError) Unwrap() []error {
	return []error{ErrOperationFailed, e.Err}
}
