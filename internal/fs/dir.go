package fs

import (
	"context"
	"os"

	"lunixfs/internal/logging"
	"lunixfs/internal/table"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"golang.org/x/sys/unix"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir represents a directory entry in the table, including the root.
type Dir struct {
	fs   *LunixFS
	path string
}

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	dirLogger.Trace("Getting attributes for directory: %q", d.path)
	return d.fs.attr(d.path, table.Directory, a)
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	dirLogger.Debug("Looking up %q in directory %q", name, d.path)
	childPath := table.Join(d.path, name)
	if err := table.ValidatePath(childPath); err != nil {
		dirLogger.Debug("Rejecting lookup of %q: %v", childPath, err)
		return nil, ToFuseError(err)
	}

	e, err := d.fs.table.Find(childPath)
	if err != nil {
		dirLogger.Debug("Path not found: %q", childPath)
		return nil, ToFuseError(err)
	}
	return d.node(&e), nil
}

// ReadDirAll implements the HandleReadDirAller interface, listing directory contents.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	dirLogger.Debug("Reading directory contents: %q", d.path)

	children, err := d.fs.table.ChildrenOf(d.path)
	if err != nil {
		dirLogger.Error("Failed to list %q: %v", d.path, err)
		return nil, ToFuseError(err)
	}

	entries := make([]fuse.Dirent, 0, len(children)+2)
	entries = append(entries, fuse.Dirent{Name: ".", Type: fuse.DT_Dir})
	entries = append(entries, fuse.Dirent{Name: "..", Type: fuse.DT_Dir})

	for _, c := range children {
		entries = append(entries, fuse.Dirent{
			Inode: inode(c.ID),
			Name:  c.Name,
			Type:  direntType(c.Kind),
		})
	}

	dirLogger.Debug("Found %d entries in directory %q", len(entries), d.path)
	return entries, nil
}

// Mkdir implements the NodeMkdirer interface, creating a new directory.
func (d *Dir) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	dirLogger.Info("Creating directory %q in %q", req.Name, d.path)
	childPath := table.Join(d.path, req.Name)

	e, err := d.fs.table.Create(childPath, table.Directory, d.fs.owner(req.Uid), nil)
	if err != nil {
		dirLogger.Error("Failed to create directory %q: %v", childPath, err)
		return nil, ToFuseError(err)
	}

	dirLogger.Debug("Created directory %q with id %d", childPath, e.ID)
	return &Dir{fs: d.fs, path: childPath}, nil
}

// Create implements the NodeCreater interface, creating an empty regular
// file. The returned node doubles as its handle.
func (d *Dir) Create(_ context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	dirLogger.Info("Creating file %q in %q", req.Name, d.path)
	f, err := d.createFile(req.Name, req.Uid)
	if err != nil {
		return nil, nil, err
	}
	resp.Flags |= fuse.OpenDirectIO
	return f, f, nil
}

// Mknod implements the NodeMknoder interface. Only regular files can be
// created; device nodes, fifos and sockets are refused.
func (d *Dir) Mknod(_ context.Context, req *fuse.MknodRequest) (fusefs.Node, error) {
	dirLogger.Debug("Mknod %q in %q with mode %v", req.Name, d.path, req.Mode)
	if req.Mode&os.ModeType != 0 {
		dirLogger.Warn("Refusing to create special file %q (mode %v)", req.Name, req.Mode)
		return nil, unix.EPERM
	}
	return d.createFile(req.Name, req.Uid)
}

func (d *Dir) createFile(name string, uid uint32) (*File, error) {
	childPath := table.Join(d.path, name)
	e, err := d.fs.table.Create(childPath, table.File, d.fs.owner(uid), nil)
	if err != nil {
		dirLogger.Error("Failed to create file %q: %v", childPath, err)
		return nil, ToFuseError(err)
	}
	dirLogger.Debug("Created file %q with id %d", childPath, e.ID)
	return &File{fs: d.fs, path: childPath}, nil
}

// Remove implements the NodeRemover interface, handling both unlink and rmdir.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	childPath := table.Join(d.path, req.Name)
	kind := table.File
	if req.Dir {
		kind = table.Directory
	}
	dirLogger.Info("Removing %s %q", kind, childPath)

	if err := d.fs.table.RemovePath(childPath, kind); err != nil {
		dirLogger.Debug("Remove of %q failed: %v", childPath, err)
		return removeError(err, req.Dir)
	}
	return nil
}

// Setattr implements the NodeSetattrer interface. Only times apply to
// directories.
func (d *Dir) Setattr(_ context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return d.fs.setattr(d.path, table.Directory, req, resp)
}

func (d *Dir) node(e *table.Entry) fusefs.Node {
	if e.IsDir() {
		return &Dir{fs: d.fs, path: e.Path}
	}
	return &File{fs: d.fs, path: e.Path}
}
