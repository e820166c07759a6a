package fs

import (
	fusefs "bazil.org/fuse/fs"
)

// Filesystem is the set of FS-level requests LunixFS answers.
type Filesystem interface {
	fusefs.FS
	fusefs.FSStatfser
}

// EntryNode is implemented by both node kinds.
type EntryNode interface {
	fusefs.Node
	fusefs.NodeSetattrer
}

// DirNode covers namespace operations. There is no rename: entry paths are
// fixed at creation.
type DirNode interface {
	EntryNode
	fusefs.NodeStringLookuper
	fusefs.HandleReadDirAller
	fusefs.NodeMkdirer
	fusefs.NodeCreater
	fusefs.NodeMknoder
	fusefs.NodeRemover
}

// FileNode is a regular file that acts as its own handle.
type FileNode interface {
	EntryNode
	fusefs.NodeOpener
	fusefs.NodeFsyncer
	fusefs.HandleReader
	fusefs.HandleWriter
}

var (
	_ Filesystem = (*LunixFS)(nil)
	_ DirNode    = (*Dir)(nil)
	_ FileNode   = (*File)(nil)
)
