package table

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a path or id that is not in the table
	ErrNotFound = errors.New("entry not found")

	// ErrExists indicates a create on a path that is already taken
	ErrExists = errors.New("entry already exists")

	// ErrCapacityExceeded indicates the table or a content buffer is full
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrContentFull is the content-buffer flavour of ErrCapacityExceeded
	ErrContentFull = fmt.Errorf("%w: content buffer full", ErrCapacityExceeded)

	// ErrKindMismatch indicates a file operation on a directory or vice versa
	ErrKindMismatch = errors.New("entry kind mismatch")

	// ErrNotDir indicates a parent path that names a file
	ErrNotDir = errors.New("parent is not a directory")

	// ErrNotEmpty indicates removal of a directory that still has children
	ErrNotEmpty = errors.New("directory not empty")

	// ErrInvalidPath indicates a malformed path
	ErrInvalidPath = errors.New("invalid path format")

	// ErrNameTooLong indicates a path or name that does not fit a snapshot record
	ErrNameTooLong = errors.New("name too long")

	// ErrInvalidOffset indicates a negative read/write offset or size
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrInvalidEntry indicates a restored entry whose fields contradict each other
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrRootEntry indicates an attempt to remove the root entry
	ErrRootEntry = errors.New("root entry cannot be removed")
)

// Error wraps table errors with the operation and affected path.
type Error struct {
	Op   string // Operation that failed (e.g., "create", "remove")
	Path string // Affected path
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}

// Common operation names for consistent logging and error reporting
const (
	OpFind     = "find"
	OpCreate   = "create"
	OpRemove   = "remove"
	OpChildren = "children"
	OpRead     = "read"
	OpWrite    = "write"
	OpTruncate = "truncate"
	OpTouch    = "touch"
	OpRestore  = "restore"
)
