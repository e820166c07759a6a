package fs

import (
	"bazil.org/fuse"

	"lunixfs/internal/table"
)

// inode numbers start at 1 so the root never reports inode 0.
func inode(id table.ID) uint64 {
	return uint64(id) + 1
}

// blocks512 returns the number of 512-byte blocks covering size bytes.
func blocks512(size uint64) uint64 {
	return (size + 511) / 512
}

func direntType(k table.Kind) fuse.DirentType {
	if k == table.Directory {
		return fuse.DT_Dir
	}
	return fuse.DT_File
}

// sizeToUint64 clamps negative lengths to zero.
func sizeToUint64(n int64) uint64 {
	return uint64(max(n, 0))
}

// countToUint64 clamps negative counts to zero.
func countToUint64(n int) uint64 {
	return uint64(max(n, 0))
}

// idToUint32 clamps process credentials into the uint32 range FUSE expects.
func idToUint32(n int) uint32 {
	if n < 0 || n > int(^uint32(0)) {
		return 0
	}
	return uint32(n)
}
