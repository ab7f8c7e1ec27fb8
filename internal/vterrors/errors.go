// Package vterrors defines the sentinel error taxonomy shared by every vt
// engine component. Callers are expected to use errors.Is against
// these values rather than inspecting error strings.
package vterrors

import "errors"

var (
	// ErrNotInWorkingTree is returned when no .vt ancestor directory was found.
	ErrNotInWorkingTree = errors.New("not inside a vt working tree")

	// ErrNotInitialized is returned when .vt/state is missing or corrupt.
	ErrNotInitialized = errors.New("working tree is not initialized")

	// ErrAlreadyInitialized is returned when init runs on an existing working tree.
	ErrAlreadyInitialized = errors.New("working tree is already initialized")

	// ErrTargetNotEmpty is returned when clone targets a non-empty, non-working-tree directory.
	ErrTargetNotEmpty = errors.New("target directory is not empty")

	// ErrDirtyWorkingTree is returned when pull/checkout would discard local changes without force.
	ErrDirtyWorkingTree = errors.New("working tree has local changes")

	// ErrBranchExists is returned when create_branch collides with an existing name.
	ErrBranchExists = errors.New("branch already exists")

	// ErrBranchNotFound is returned when checkout names an absent branch.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrPermissionDenied is returned when the remote rejects a write.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnauthenticated is returned when the api key is missing or invalid.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConflict is returned for a 409 on a content write; non-fatal, collected as a warning.
	ErrConflict = errors.New("conflict")

	// ErrRemoteUnavailable is returned for timeouts, 5xx, or network failures.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrAlreadyWatching is returned when another live process holds the watch lock.
	ErrAlreadyWatching = errors.New("another process is already watching this working tree")

	// ErrNotFound is returned when a remote entity (val, branch, file) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStashNotFound is returned when a named stash entry does not exist.
	ErrStashNotFound = errors.New("stash not found")
)

// IOError wraps a local filesystem failure with the path that caused it.
// It always wraps an underlying error, retrievable with errors.Unwrap.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return "io error at " + e.Path + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError constructs an *IOError, or returns nil if err is nil.
func NewIOError(path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Path: path, Err: err}
}

// IsRetryable returns true if the error is likely to succeed if the caller retries.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Listing and content-fetch failures (idempotent reads) are retryable when
	// they stem from a transient remote outage; mutations are never retried
	// automatically by the engine.
	return errors.Is(err, ErrRemoteUnavailable)
}

// IsUserActionRequired returns true if the error requires the user to decide
// something (force a destructive op, pick another branch name, re-auth).
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrDirtyWorkingTree) ||
		errors.Is(err, ErrBranchExists) ||
		errors.Is(err, ErrUnauthenticated)
}

// IsFatal returns true if the error indicates a non-recoverable state for the
// current operation (as opposed to one a flag/retry can resolve).
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotInWorkingTree) || errors.Is(err, ErrNotInitialized)
}
