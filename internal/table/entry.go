// Package table holds the in-memory entry table that backs lunixfs: a flat
// store of file and directory records over which a hierarchical namespace is
// derived from the record paths.
package table

import (
	"time"
)

// MaxContent is the fixed content capacity of a file entry in bytes.
const MaxContent = 32768

// DefaultCapacity is the default number of entries a table can hold,
// including the root.
const DefaultCapacity = 128

// ID identifies a live entry.
type ID uint32

// RootID is the id of the reserved root entry.
const RootID ID = 0

// Kind distinguishes files from directories.
type Kind uint8

const (
	// Directory is a directory entry. It never carries content.
	Directory Kind = 0
	// File is a regular file entry.
	File Kind = 1
)

// String returns "file" or "directory".
func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return "unknown"
	}
}

// Valid reports whether k is File or Directory.
func (k Kind) Valid() bool {
	return k == File || k == Directory
}

// Entry is one file or directory record. ID, Path, Name and Kind never change
// after creation.
type Entry struct {
	ID      ID
	Path    string
	Name    string
	Kind    Kind
	Content []byte
	Length  int64
	Owner   uint32
	Atime   time.Time
	Mtime   time.Time
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Kind == Directory
}

// clone returns a deep copy of the entry.
func (e *Entry) clone() Entry {
	c := *e
	if e.Content != nil {
		c.Content = append([]byte(nil), e.Content...)
	}
	return c
}

// meta returns a copy of the entry without content.
func (e *Entry) meta() Entry {
	c := *e
	c.Content = nil
	return c
}
