package fs

import (
	"context"

	"lunixfs/internal/logging"
	"lunixfs/internal/table"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// File represents a regular file entry. Its content lives in the table, so
// the node also serves as its own handle.
type File struct {
	fs   *LunixFS
	path string
}

// Attr implements the Node interface, returning file attributes.
func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	fileLogger.Trace("Getting attributes for file: %q", f.path)
	return f.fs.attr(f.path, table.File, a)
}

// Open implements the NodeOpener interface.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	fileLogger.Debug("Opening file %q with flags %v", f.path, req.Flags)
	if _, err := f.fs.table.Find(f.path); err != nil {
		return nil, ToFuseError(err)
	}
	resp.Flags |= fuse.OpenDirectIO
	return f, nil
}

// Read implements the HandleReader interface.
func (f *File) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	fileLogger.Trace("Reading %d bytes at offset %d from %q", req.Size, req.Offset, f.path)

	data, err := f.fs.table.ReadAt(f.path, req.Offset, req.Size)
	if err != nil {
		fileLogger.Error("Read of %q failed: %v", f.path, err)
		return ToFuseError(err)
	}
	resp.Data = data
	return nil
}

// Write implements the HandleWriter interface. Writes reaching the content
// limit are stored short; the kernel retries the remainder and gets EFBIG.
func (f *File) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	fileLogger.Trace("Writing %d bytes at offset %d to %q", len(req.Data), req.Offset, f.path)

	n, err := f.fs.table.WriteAt(f.path, req.Offset, req.Data)
	if err != nil {
		fileLogger.Debug("Write to %q failed: %v", f.path, err)
		return ToFuseError(err)
	}
	if n < len(req.Data) {
		fileLogger.Warn("Short write to %q: %d of %d bytes stored", f.path, n, len(req.Data))
	}
	resp.Size = n
	return nil
}

// Setattr implements the NodeSetattrer interface, handling truncation and
// time updates.
func (f *File) Setattr(_ context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return f.fs.setattr(f.path, table.File, req, resp)
}

// Fsync implements the NodeFsyncer interface. Content is persisted when the
// filesystem is unmounted, so there is nothing to flush here.
func (f *File) Fsync(_ context.Context, _ *fuse.FsyncRequest) error {
	fileLogger.Trace("Fsync on %q", f.path)
	return nil
}
