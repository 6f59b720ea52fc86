package store

import (
	"errors"
	"fmt"
)

// Common store errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrTransactionFailed is returned when a database transaction fails
	// to begin, commit or roll back.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrCommitHookFailed is returned when one or more commit hooks failed.
	// The transaction itself has already been committed when this is returned.
	ErrCommitHookFailed = errors.New("commit hook failed")

	// ErrTransactionDone is returned when a hook is registered on a
	// transaction that was rolled back.
	ErrTransactionDone = errors.New("transaction already rolled back")
)

// HookError collects the failures of the commit hooks of one transaction.
type HookError struct {
	Errs []error
}

// Error implements the error interface for HookError.
func (e *HookError) Error() string {
	if len(e.Errs) == 1 {
		return fmt.Sprintf("%s: %v", ErrCommitHookFailed, e.Errs[0])
	}
	return fmt.Sprintf("%s: %d hooks failed: %v", ErrCommitHookFailed, len(e.Errs), errors.Join(e.Errs...))
}

// Is reports ErrCommitHookFailed as a match.
func (e *HookError) Is(target error) bool {
	return target == ErrCommitHookFailed
}

// Unwrap returns the individual hook errors.
func (e *HookError) Unwrap() []error {
	return e.Errs
}
