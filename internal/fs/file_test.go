package fs

import (
	"bytes"
	"context"
	"testing"
	"time"

	"lunixfs/internal/table"

	"bazil.org/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func createTestFile(t *testing.T, lfs *LunixFS, name string) *File {
	t.Helper()
	node, _, err := rootDir(t, lfs).Create(context.Background(),
		&fuse.CreateRequest{Name: name, Header: fuse.Header{Uid: 1000}}, &fuse.CreateResponse{})
	require.NoError(t, err)
	return node.(*File)
}

func readAll(t *testing.T, f *File, off int64, size int) []byte {
	t.Helper()
	resp := &fuse.ReadResponse{}
	require.NoError(t, f.Read(context.Background(), &fuse.ReadRequest{Offset: off, Size: size}, resp))
	return resp.Data
}

func TestFileOperations(t *testing.T) {
	lfs := setupTestFS(t, 8)
	f := createTestFile(t, lfs, "hello.txt")
	ctx := context.Background()

	t.Run("Attr", func(t *testing.T) {
		var attr fuse.Attr
		require.NoError(t, f.Attr(ctx, &attr))
		assert.Equal(t, uint64(0), attr.Size)
		assert.Equal(t, uint32(1), attr.Nlink)
		assert.Equal(t, uint32(1000), attr.Uid)
		assert.True(t, attr.Mode.IsRegular())
		assert.Equal(t, "-rw-r--r--", attr.Mode.String())
	})

	t.Run("Open", func(t *testing.T) {
		resp := &fuse.OpenResponse{}
		h, err := f.Open(ctx, &fuse.OpenRequest{}, resp)
		require.NoError(t, err)
		assert.Same(t, f, h)
		assert.NotZero(t, resp.Flags&fuse.OpenDirectIO)
	})

	t.Run("WriteAndRead", func(t *testing.T) {
		resp := &fuse.WriteResponse{}
		require.NoError(t, f.Write(ctx, &fuse.WriteRequest{Data: []byte("hello")}, resp))
		assert.Equal(t, 5, resp.Size)

		assert.Equal(t, []byte("hello"), readAll(t, f, 0, 100))
		assert.Equal(t, []byte("lo"), readAll(t, f, 3, 100))
		assert.Empty(t, readAll(t, f, 5, 100))

		var attr fuse.Attr
		require.NoError(t, f.Attr(ctx, &attr))
		assert.Equal(t, uint64(5), attr.Size)
		assert.Equal(t, uint64(1), attr.Blocks)
	})

	t.Run("WriteWithGap", func(t *testing.T) {
		resp := &fuse.WriteResponse{}
		require.NoError(t, f.Write(ctx, &fuse.WriteRequest{Offset: 8, Data: []byte("!")}, resp))
		assert.Equal(t, 1, resp.Size)
		assert.Equal(t, []byte("hello\x00\x00\x00!"), readAll(t, f, 0, 100))
	})

	t.Run("Truncate", func(t *testing.T) {
		resp := &fuse.SetattrResponse{}
		require.NoError(t, f.Setattr(ctx, &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 2}, resp))
		assert.Equal(t, uint64(2), resp.Attr.Size)
		assert.Equal(t, []byte("he"), readAll(t, f, 0, 100))

		err := f.Setattr(ctx, &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: table.MaxContent + 1}, &fuse.SetattrResponse{})
		assert.Equal(t, unix.EFBIG, err)
	})

	t.Run("Times", func(t *testing.T) {
		atime := time.Unix(1600000000, 0)
		mtime := time.Unix(1650000000, 0)
		resp := &fuse.SetattrResponse{}
		req := &fuse.SetattrRequest{Valid: fuse.SetattrAtime | fuse.SetattrMtime, Atime: atime, Mtime: mtime}
		require.NoError(t, f.Setattr(ctx, req, resp))
		assert.True(t, resp.Attr.Atime.Equal(atime))
		assert.True(t, resp.Attr.Mtime.Equal(mtime))

		before := time.Now().Add(-time.Second)
		req = &fuse.SetattrRequest{Valid: fuse.SetattrMtime | fuse.SetattrMtimeNow}
		require.NoError(t, f.Setattr(ctx, req, resp))
		assert.True(t, resp.Attr.Mtime.After(before))
		assert.True(t, resp.Attr.Atime.Equal(atime))
	})

	t.Run("IgnoredAttributes", func(t *testing.T) {
		req := &fuse.SetattrRequest{Valid: fuse.SetattrMode, Mode: 0600}
		resp := &fuse.SetattrResponse{}
		require.NoError(t, f.Setattr(ctx, req, resp))
		assert.Equal(t, "-rw-r--r--", resp.Attr.Mode.String())
	})

	t.Run("Fsync", func(t *testing.T) {
		assert.NoError(t, f.Fsync(ctx, &fuse.FsyncRequest{}))
	})
}

func TestFileWriteCapacity(t *testing.T) {
	lfs := setupTestFS(t, 4)
	f := createTestFile(t, lfs, "big")
	ctx := context.Background()

	data := bytes.Repeat([]byte("x"), 100)
	resp := &fuse.WriteResponse{}
	require.NoError(t, f.Write(ctx, &fuse.WriteRequest{Offset: table.MaxContent - 10, Data: data}, resp))
	assert.Equal(t, 10, resp.Size)

	var attr fuse.Attr
	require.NoError(t, f.Attr(ctx, &attr))
	assert.Equal(t, uint64(table.MaxContent), attr.Size)

	err := f.Write(ctx, &fuse.WriteRequest{Offset: table.MaxContent, Data: data}, &fuse.WriteResponse{})
	assert.Equal(t, unix.EFBIG, err)
}

func TestFileRemoved(t *testing.T) {
	lfs := setupTestFS(t, 4)
	f := createTestFile(t, lfs, "doomed")
	ctx := context.Background()

	require.NoError(t, rootDir(t, lfs).Remove(ctx, &fuse.RemoveRequest{Name: "doomed"}))

	err := f.Read(ctx, &fuse.ReadRequest{Size: 10}, &fuse.ReadResponse{})
	assert.Equal(t, unix.ENOENT, err)
	err = f.Write(ctx, &fuse.WriteRequest{Data: []byte("x")}, &fuse.WriteResponse{})
	assert.Equal(t, unix.ENOENT, err)
	_, err = f.Open(ctx, &fuse.OpenRequest{}, &fuse.OpenResponse{})
	assert.Equal(t, unix.ENOENT, err)
	assert.NoError(t, f.Fsync(ctx, &fuse.FsyncRequest{}))
}
