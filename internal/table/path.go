package table

import (
	"fmt"
	"strings"
)

const (
	// RootPath is the path of the reserved root entry.
	RootPath = "/"

	// MaxPathLen is the longest path a snapshot record can hold.
	MaxPathLen = 255

	// MaxNameLen is the longest entry name a snapshot record can hold.
	MaxNameLen = 127
)

// Split returns the last segment of path and the path of its parent. An
// empty parent is normalized to "/". The root path has no parent and must be
// handled by the caller before calling Split.
func Split(path string) (name, parent string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path, RootPath
	}
	name = path[i+1:]
	parent = path[:i]
	if parent == "" {
		parent = RootPath
	}
	return name, parent
}

// Join is the inverse of Split.
func Join(parent, name string) string {
	if parent == RootPath {
		return RootPath + name
	}
	return parent + "/" + name
}

// IsRoot returns true if path is the root path "/".
func IsRoot(path string) bool {
	return path == RootPath
}

// ValidatePath checks that path is absolute, has no empty, "." or ".."
// segments, has no trailing slash and fits the fixed record fields.
func ValidatePath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, path)
	}
	if IsRoot(path) {
		return nil
	}
	if len(path) > MaxPathLen {
		return fmt.Errorf("%w: path is %d bytes, limit %d", ErrNameTooLong, len(path), MaxPathLen)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidPath, path)
	}
	for _, segment := range strings.Split(path[1:], "/") {
		switch segment {
		case "":
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		case ".", "..":
			return fmt.Errorf("%w: %q has a relative segment", ErrInvalidPath, path)
		}
	}
	if name, _ := Split(path); len(name) > MaxNameLen {
		return fmt.Errorf("%w: name is %d bytes, limit %d", ErrNameTooLong, len(name), MaxNameLen)
	}
	return nil
}
