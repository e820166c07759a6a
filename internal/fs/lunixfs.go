package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"lunixfs/internal/logging"
	"lunixfs/internal/table"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"golang.org/x/sys/unix"
)

var (
	vfsLogger = logging.GetLogger().WithPrefix("vfs")
)

const (
	blockSize = 4096
	subtype   = "lunixfs"
)

// MountOptions controls how the filesystem is presented to the kernel.
type MountOptions struct {
	FSName             string
	AllowOther         bool
	DefaultPermissions bool
}

// LunixFS serves an entry table over FUSE. The table does its own locking,
// so the adapter holds no filesystem state beyond the connection.
type LunixFS struct {
	table      *table.Table
	uid        uint32 // owner of new entries when forceUID is set
	gid        uint32 // group reported for every entry
	forceUID   bool
	conn       *fuse.Conn
	mountPoint string
	mu         sync.Mutex // protects conn and mountPoint
}

// Identity returns the uid and gid the filesystem runs as. PUID and PGID in
// the environment take precedence over the process credentials.
func Identity() (uid, gid uint32) {
	uid = idToUint32(unix.Getuid())
	gid = idToUint32(unix.Getgid())
	if v, ok := envID("PUID"); ok {
		uid = v
	}
	if v, ok := envID("PGID"); ok {
		gid = v
	}
	return uid, gid
}

func envID(name string) (uint32, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		vfsLogger.Warn("Ignoring invalid %s %q: %v", name, s, err)
		return 0, false
	}
	return uint32(id), true
}

// NewLunixFS creates a filesystem over t.
func NewLunixFS(t *table.Table) *LunixFS {
	uid, gid := Identity()
	_, forceUID := envID("PUID")

	vfsLogger.Info("Creating filesystem over %d entries (capacity %d)", t.Len(), t.Capacity())
	vfsLogger.Debug("UID: %d, GID: %d, force owner: %v", uid, gid, forceUID)

	return &LunixFS{
		table:    t,
		uid:      uid,
		gid:      gid,
		forceUID: forceUID,
	}
}

// Table returns the entry table served by the filesystem.
func (lfs *LunixFS) Table() *table.Table {
	return lfs.table
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (lfs *LunixFS) Root() (fusefs.Node, error) {
	vfsLogger.Trace("Getting root directory node")
	return &Dir{fs: lfs, path: table.RootPath}, nil
}

// Statfs reports entry slots as inodes and unused content as free blocks.
func (lfs *LunixFS) Statfs(_ context.Context, _ *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	capacity := countToUint64(lfs.table.Capacity())
	free := countToUint64(lfs.table.Free())
	perEntry := uint64(table.MaxContent / blockSize)

	resp.Bsize = blockSize
	resp.Frsize = blockSize
	resp.Blocks = capacity * perEntry
	resp.Bfree = free * perEntry
	resp.Bavail = resp.Bfree
	resp.Files = capacity
	resp.Ffree = free
	resp.Namelen = table.MaxNameLen

	vfsLogger.Trace("Statfs: %d/%d slots free", free, capacity)
	return nil
}

// owner picks the owner recorded for an entry created by uid.
func (lfs *LunixFS) owner(uid uint32) uint32 {
	if lfs.forceUID {
		return lfs.uid
	}
	return uid
}

// fillAttr copies entry metadata into a FUSE attribute block.
func (lfs *LunixFS) fillAttr(e *table.Entry, a *fuse.Attr) {
	a.Inode = inode(e.ID)
	a.Uid = e.Owner
	a.Gid = lfs.gid
	a.Atime = e.Atime
	a.Mtime = e.Mtime
	a.Ctime = e.Mtime
	a.BlockSize = blockSize

	if e.IsDir() {
		a.Mode = os.ModeDir | 0755
		a.Nlink = 2
		return
	}
	a.Mode = 0644
	a.Nlink = 1
	a.Size = sizeToUint64(e.Length)
	a.Blocks = blocks512(a.Size)
}

// attr looks up path and fills a, reporting ESTALE when the node kind
// no longer matches the entry stored there.
func (lfs *LunixFS) attr(path string, kind table.Kind, a *fuse.Attr) error {
	e, err := lfs.table.Find(path)
	if err != nil {
		return ToFuseError(err)
	}
	if e.Kind != kind {
		vfsLogger.Debug("Stale %s node for %q, entry is now a %s", kind, path, e.Kind)
		return unix.ESTALE
	}
	lfs.fillAttr(&e, a)
	return nil
}

// setattr applies size and time changes to the entry at path. Mode and
// ownership changes are accepted and ignored since entries carry neither.
func (lfs *LunixFS) setattr(path string, kind table.Kind, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	vfsLogger.Debug("Setattr on %q: %v", path, req.Valid)

	if req.Valid.Size() {
		if req.Size > table.MaxContent {
			return unix.EFBIG
		}
		if err := lfs.table.Truncate(path, int64(req.Size)); err != nil {
			if errors.Is(err, table.ErrKindMismatch) {
				return unix.EISDIR
			}
			return ToFuseError(err)
		}
	}

	now := time.Now()
	var atime, mtime time.Time
	switch {
	case req.Valid.AtimeNow():
		atime = now
	case req.Valid.Atime():
		atime = req.Atime
	}
	switch {
	case req.Valid.MtimeNow():
		mtime = now
	case req.Valid.Mtime():
		mtime = req.Mtime
	}
	if !atime.IsZero() || !mtime.IsZero() {
		if err := lfs.table.Touch(path, atime, mtime); err != nil {
			return ToFuseError(err)
		}
	}

	return lfs.attr(path, kind, &resp.Attr)
}

// Mount attaches the filesystem at mountPoint. Serve must be called
// afterwards to answer kernel requests.
func (lfs *LunixFS) Mount(mountPoint string, opts MountOptions) error {
	vfsLogger.Info("Mounting filesystem")
	vfsLogger.Debug("Mount point: %s", mountPoint)

	info, err := os.Stat(mountPoint)
	if err != nil {
		return fmt.Errorf("mount point not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount point %s is not a directory", mountPoint)
	}

	fsName := opts.FSName
	if fsName == "" {
		fsName = subtype
	}
	mountOpts := []fuse.MountOption{
		fuse.FSName(fsName),
		fuse.Subtype(subtype),
	}
	if opts.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}
	if opts.DefaultPermissions {
		mountOpts = append(mountOpts, fuse.DefaultPermissions())
	}

	vfsLogger.Debug("Mounting with options: %+v", opts)

	c, err := fuse.Mount(mountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}

	lfs.mu.Lock()
	lfs.conn = c
	lfs.mountPoint = mountPoint
	lfs.mu.Unlock()

	vfsLogger.Info("Filesystem mounted at %s", mountPoint)
	return nil
}

// Serve answers kernel requests until the filesystem is unmounted. When ctx
// is cancelled the filesystem is unmounted, which ends Serve.
func (lfs *LunixFS) Serve(ctx context.Context) error {
	lfs.mu.Lock()
	c := lfs.conn
	lfs.mu.Unlock()
	if c == nil {
		return errors.New("filesystem is not mounted")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := lfs.Unmount(); err != nil {
				vfsLogger.Error("Unmount after shutdown request failed: %v", err)
			}
		case <-done:
		}
	}()

	if err := fusefs.Serve(c, lfs); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	vfsLogger.Info("FUSE server stopped")
	return nil
}

// Unmount detaches the filesystem from its mount point.
func (lfs *LunixFS) Unmount() error {
	lfs.mu.Lock()
	mountPoint := lfs.mountPoint
	mounted := lfs.conn != nil
	lfs.mu.Unlock()
	if !mounted {
		return nil
	}

	vfsLogger.Info("Unmounting filesystem from: %s", mountPoint)
	if err := fuse.Unmount(mountPoint); err != nil {
		vfsLogger.Error("Unmount failed: %v", err)
		return err
	}
	vfsLogger.Info("Unmount completed successfully")
	return nil
}

// Close releases the FUSE connection.
func (lfs *LunixFS) Close() error {
	lfs.mu.Lock()
	defer lfs.mu.Unlock()
	if lfs.conn == nil {
		return nil
	}
	err := lfs.conn.Close()
	lfs.conn = nil
	return err
}
