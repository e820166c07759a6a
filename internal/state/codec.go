package state

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"lunixfs/internal/table"
)

var (
	// ErrIO indicates a read or write failure on the backing store
	ErrIO = errors.New("backing store I/O error")

	// ErrCorruptSnapshot indicates truncated or malformed snapshot data
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrLocked indicates the backing store is held by another process
	ErrLocked = errors.New("backing store is locked by another process")
)

// Encode writes the snapshot of t to w: a little-endian uint32 count of the
// non-root entries followed by one fixed-size record per entry. It returns
// the number of records written.
func Encode(w io.Writer, t *table.Table) (int, error) {
	entries := t.Entries()
	bw := bufio.NewWriterSize(w, RecordSize)

	if err := binary.Write(bw, byteOrder, uint32(len(entries))); err != nil {
		return 0, fmt.Errorf("%w: writing entry count: %w", ErrIO, err)
	}

	var rec record
	for i := range entries {
		toRecord(&entries[i], &rec)
		if err := binary.Write(bw, byteOrder, &rec); err != nil {
			return 0, fmt.Errorf("%w: writing record %d (%s): %w", ErrIO, i, entries[i].Path, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("%w: flushing snapshot: %w", ErrIO, err)
	}
	logger.Trace("Encoded %d entries (%d bytes)", len(entries), HeaderSize+len(entries)*RecordSize)
	return len(entries), nil
}

// Decode reads a snapshot produced by Encode and rebuilds the table. An empty
// stream yields a table holding only the root. Bytes after the last counted
// record are ignored.
func Decode(r io.Reader, capacity int, opts ...table.Option) (*table.Table, error) {
	if capacity < 1 {
		capacity = table.DefaultCapacity
	}
	br := bufio.NewReaderSize(r, RecordSize)

	var count uint32
	if err := binary.Read(br, byteOrder, &count); err != nil {
		if errors.Is(err, io.EOF) {
			logger.Debug("Snapshot stream is empty")
			return table.New(capacity, opts...), nil
		}
		return nil, fmt.Errorf("%w: reading entry count: %w", ErrIO, err)
	}

	if int64(count) > int64(capacity-1) {
		return nil, fmt.Errorf("%w: %d entries exceed capacity %d", ErrCorruptSnapshot, count, capacity)
	}

	entries := make([]table.Entry, 0, count)
	var rec record
	for i := uint32(0); i < count; i++ {
		if err := binary.Read(br, byteOrder, &rec); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: record %d of %d is truncated", ErrCorruptSnapshot, i+1, count)
			}
			return nil, fmt.Errorf("%w: reading record %d: %w", ErrIO, i+1, err)
		}
		entries = append(entries, fromRecord(&rec))
	}

	t, err := table.Restore(capacity, entries, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	logger.Trace("Decoded %d entries", count)
	return t, nil
}
