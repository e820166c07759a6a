// Package state provides snapshot persistence of the entry table to a single
// backing file.
package state

import (
	"bytes"
	"encoding/binary"
	"time"

	"lunixfs/internal/table"
)

const (
	pathField = table.MaxPathLen + 1
	nameField = table.MaxNameLen + 1
)

// byteOrder is the byte order of every multi-byte field in a snapshot.
var byteOrder = binary.LittleEndian

// record is the on-disk layout of one entry. Fields are packed in declaration
// order with no padding; string and content fields are NUL padded.
type record struct {
	Path    [pathField]byte
	Name    [nameField]byte
	Content [table.MaxContent]byte
	ID      int32
	Kind    uint8
	Owner   uint32
	Length  int64
	Atime   int64
	Mtime   int64
}

// RecordSize is the encoded size of one entry record in bytes.
var RecordSize = binary.Size(record{})

// HeaderSize is the encoded size of the entry count.
const HeaderSize = 4

func toRecord(e *table.Entry, r *record) {
	*r = record{}
	copy(r.Path[:], e.Path)
	copy(r.Name[:], e.Name)
	copy(r.Content[:], e.Content)
	r.ID = int32(e.ID)
	r.Kind = uint8(e.Kind)
	r.Owner = e.Owner
	r.Length = e.Length
	r.Atime = e.Atime.Unix()
	r.Mtime = e.Mtime.Unix()
}

func fromRecord(r *record) table.Entry {
	e := table.Entry{
		ID:    table.ID(r.ID),
		Path:  cString(r.Path[:]),
		Name:  cString(r.Name[:]),
		Kind:  table.Kind(r.Kind),
		Owner: r.Owner,
		Atime: time.Unix(r.Atime, 0),
		Mtime: time.Unix(r.Mtime, 0),
	}
	// Out-of-range lengths are passed through so that Restore rejects them.
	e.Length = r.Length
	if r.Length > 0 && r.Length <= table.MaxContent {
		e.Content = append([]byte(nil), r.Content[:r.Length]...)
	}
	return e
}

// cString returns the bytes of b up to the first NUL.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
