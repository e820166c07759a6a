// Package fs provides the FUSE adapter of lunixfs.
//
// This file contains the mapping from table errors to FUSE error codes.
package fs

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"lunixfs/internal/logging"
	"lunixfs/internal/table"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")
)

// ToFuseError converts a table error to the errno FUSE should report.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}

	var tblErr *table.Error
	if errors.As(err, &tblErr) {
		errLogger.Trace("Converting table error to FUSE error: %v", tblErr)
	}

	switch {
	case errors.Is(err, table.ErrNotFound):
		return unix.ENOENT
	case errors.Is(err, table.ErrExists):
		return unix.EEXIST
	case errors.Is(err, table.ErrContentFull):
		return unix.EFBIG
	case errors.Is(err, table.ErrCapacityExceeded):
		return unix.ENOSPC
	case errors.Is(err, table.ErrNotDir):
		return unix.ENOTDIR
	case errors.Is(err, table.ErrNotEmpty):
		return unix.ENOTEMPTY
	case errors.Is(err, table.ErrNameTooLong):
		return unix.ENAMETOOLONG
	case errors.Is(err, table.ErrRootEntry):
		return unix.EBUSY
	case errors.Is(err, table.ErrKindMismatch),
		errors.Is(err, table.ErrInvalidPath),
		errors.Is(err, table.ErrInvalidOffset):
		return unix.EINVAL
	case errors.Is(err, os.ErrNotExist):
		return unix.ENOENT
	case errors.Is(err, os.ErrPermission):
		return unix.EACCES
	default:
		errLogger.Debug("Unknown error type, returning EIO: %v", err)
		return unix.EIO
	}
}

// removeError maps a failed removal. Unlinking a directory reports EISDIR
// and rmdir on a file reports ENOTDIR.
func removeError(err error, dir bool) error {
	if errors.Is(err, table.ErrKindMismatch) {
		if dir {
			return unix.ENOTDIR
		}
		return unix.EISDIR
	}
	return ToFuseError(err)
}
