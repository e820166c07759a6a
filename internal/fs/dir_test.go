package fs

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"lunixfs/internal/table"

	"bazil.org/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func direntNames(entries []fuse.Dirent) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func TestDirOperations(t *testing.T) {
	lfs := setupTestFS(t, 16)
	root := rootDir(t, lfs)
	ctx := context.Background()

	t.Run("RootDirectory", func(t *testing.T) {
		var attr fuse.Attr
		require.NoError(t, root.Attr(ctx, &attr))
		assert.Equal(t, os.ModeDir|0755, attr.Mode)
		assert.Equal(t, uint64(1), attr.Inode)
		assert.Equal(t, uint32(2), attr.Nlink)
		assert.Equal(t, lfs.gid, attr.Gid)

		entries, err := root.ReadDirAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{".", ".."}, direntNames(entries))
	})

	t.Run("Mkdir", func(t *testing.T) {
		node, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "docs", Header: fuse.Header{Uid: 1000}})
		require.NoError(t, err)
		docs, ok := node.(*Dir)
		require.True(t, ok)
		assert.Equal(t, "/docs", docs.path)

		var attr fuse.Attr
		require.NoError(t, docs.Attr(ctx, &attr))
		assert.True(t, attr.Mode.IsDir())
		assert.Equal(t, uint32(1000), attr.Uid)
		assert.Equal(t, uint64(2), attr.Inode)

		_, err = root.Mkdir(ctx, &fuse.MkdirRequest{Name: "docs"})
		assert.Equal(t, unix.EEXIST, err)
	})

	t.Run("NestedCreate", func(t *testing.T) {
		node, err := root.Lookup(ctx, "docs")
		require.NoError(t, err)
		docs := node.(*Dir)

		_, err = docs.Mkdir(ctx, &fuse.MkdirRequest{Name: "drafts"})
		require.NoError(t, err)

		resp := &fuse.CreateResponse{}
		fnode, handle, err := docs.Create(ctx, &fuse.CreateRequest{Name: "notes.txt"}, resp)
		require.NoError(t, err)
		assert.Same(t, fnode, handle)
		assert.NotZero(t, resp.Flags&fuse.OpenDirectIO)

		f, ok := fnode.(*File)
		require.True(t, ok)
		assert.Equal(t, "/docs/notes.txt", f.path)
	})

	t.Run("Lookup", func(t *testing.T) {
		node, err := root.Lookup(ctx, "docs")
		require.NoError(t, err)
		docs := node.(*Dir)

		fnode, err := docs.Lookup(ctx, "notes.txt")
		require.NoError(t, err)
		assert.IsType(t, &File{}, fnode)

		dnode, err := docs.Lookup(ctx, "drafts")
		require.NoError(t, err)
		assert.IsType(t, &Dir{}, dnode)

		_, err = docs.Lookup(ctx, "missing")
		assert.Equal(t, unix.ENOENT, err)
	})

	t.Run("ReadDirAll", func(t *testing.T) {
		node, err := root.Lookup(ctx, "docs")
		require.NoError(t, err)

		entries, err := node.(*Dir).ReadDirAll(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{".", "..", "drafts", "notes.txt"}, direntNames(entries))

		for _, e := range entries {
			switch e.Name {
			case "drafts":
				assert.Equal(t, fuse.DT_Dir, e.Type)
			case "notes.txt":
				assert.Equal(t, fuse.DT_File, e.Type)
				assert.NotZero(t, e.Inode)
			}
		}

		// Grandchildren stay out of the root listing.
		entries, err = root.ReadDirAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{".", "..", "docs"}, direntNames(entries))
	})

	t.Run("Remove", func(t *testing.T) {
		node, err := root.Lookup(ctx, "docs")
		require.NoError(t, err)
		docs := node.(*Dir)

		err = root.Remove(ctx, &fuse.RemoveRequest{Name: "docs", Dir: true})
		assert.Equal(t, unix.ENOTEMPTY, err)

		err = docs.Remove(ctx, &fuse.RemoveRequest{Name: "drafts", Dir: false})
		assert.Equal(t, unix.EISDIR, err)

		err = docs.Remove(ctx, &fuse.RemoveRequest{Name: "notes.txt", Dir: true})
		assert.Equal(t, unix.ENOTDIR, err)

		require.NoError(t, docs.Remove(ctx, &fuse.RemoveRequest{Name: "notes.txt"}))
		require.NoError(t, docs.Remove(ctx, &fuse.RemoveRequest{Name: "drafts", Dir: true}))
		require.NoError(t, root.Remove(ctx, &fuse.RemoveRequest{Name: "docs", Dir: true}))

		err = root.Remove(ctx, &fuse.RemoveRequest{Name: "docs", Dir: true})
		assert.Equal(t, unix.ENOENT, err)

		var attr fuse.Attr
		assert.Equal(t, unix.ENOENT, docs.Attr(ctx, &attr))
	})
}

func TestDirCreateErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("NameTooLong", func(t *testing.T) {
		root := rootDir(t, setupTestFS(t, 4))
		_, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: strings.Repeat("n", table.MaxNameLen+1)})
		assert.Equal(t, unix.ENAMETOOLONG, err)
	})

	t.Run("LookupNameTooLong", func(t *testing.T) {
		root := rootDir(t, setupTestFS(t, 4))
		_, err := root.Lookup(ctx, strings.Repeat("n", table.MaxNameLen+1))
		assert.Equal(t, unix.ENAMETOOLONG, err)

		_, err = root.Lookup(ctx, strings.Repeat("n", table.MaxNameLen))
		assert.Equal(t, unix.ENOENT, err)
	})

	t.Run("TableFull", func(t *testing.T) {
		root := rootDir(t, setupTestFS(t, 2))
		_, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "only"})
		require.NoError(t, err)

		_, _, err = root.Create(ctx, &fuse.CreateRequest{Name: "overflow"}, &fuse.CreateResponse{})
		assert.Equal(t, unix.ENOSPC, err)
	})

	t.Run("ParentRemoved", func(t *testing.T) {
		lfs := setupTestFS(t, 4)
		root := rootDir(t, lfs)
		node, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "gone"})
		require.NoError(t, err)
		require.NoError(t, root.Remove(ctx, &fuse.RemoveRequest{Name: "gone", Dir: true}))

		_, err = node.(*Dir).Mkdir(ctx, &fuse.MkdirRequest{Name: "child"})
		assert.Equal(t, unix.ENOENT, err)
	})

	t.Run("StaleKind", func(t *testing.T) {
		lfs := setupTestFS(t, 4)
		root := rootDir(t, lfs)
		node, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "x"})
		require.NoError(t, err)
		require.NoError(t, root.Remove(ctx, &fuse.RemoveRequest{Name: "x", Dir: true}))
		_, _, err = root.Create(ctx, &fuse.CreateRequest{Name: "x"}, &fuse.CreateResponse{})
		require.NoError(t, err)

		var attr fuse.Attr
		assert.Equal(t, unix.ESTALE, node.(*Dir).Attr(ctx, &attr))
	})
}

func TestMknod(t *testing.T) {
	lfs := setupTestFS(t, 4)
	root := rootDir(t, lfs)
	ctx := context.Background()

	node, err := root.Mknod(ctx, &fuse.MknodRequest{Name: "plain", Mode: 0644})
	require.NoError(t, err)
	assert.IsType(t, &File{}, node)

	_, err = root.Mknod(ctx, &fuse.MknodRequest{Name: "pipe", Mode: os.ModeNamedPipe | 0644})
	assert.Equal(t, unix.EPERM, err)

	_, err = lfs.Table().Find("/pipe")
	assert.ErrorIs(t, err, table.ErrNotFound)
}

func TestDirSetattr(t *testing.T) {
	lfs := setupTestFS(t, 4)
	root := rootDir(t, lfs)
	ctx := context.Background()

	node, err := root.Mkdir(ctx, &fuse.MkdirRequest{Name: "d"})
	require.NoError(t, err)
	d := node.(*Dir)

	mtime := time.Unix(1700000000, 0)
	req := &fuse.SetattrRequest{Valid: fuse.SetattrMtime, Mtime: mtime}
	resp := &fuse.SetattrResponse{}
	require.NoError(t, d.Setattr(ctx, req, resp))
	assert.True(t, resp.Attr.Mtime.Equal(mtime))

	req = &fuse.SetattrRequest{Valid: fuse.SetattrSize, Size: 10}
	assert.Equal(t, unix.EISDIR, d.Setattr(ctx, req, &fuse.SetattrResponse{}))
}
