//go:build !cgofuse

package fuse

import (
	"context"
	"path"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/routefs/routefs/internal/filesystem"
	"github.com/routefs/routefs/pkg/types"
)

// Node is a path in the mounted tree. A single node type serves files,
// directories and symlinks; every call is forwarded to the Operations by path.
type Node struct {
	fs.Inode

	ops  filesystem.Operations
	path string
}

var (
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeReadlinker = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
	_ fs.NodeSetattrer  = (*Node)(nil)
)

// Root returns the node to mount for ops
func Root(ops filesystem.Operations) *Node {
	return &Node{ops: ops, path: "/"}
}

// Path returns the absolute path the node stands for
func (n *Node) Path() string {
	return n.path
}

func (n *Node) child(name string) *Node {
	return &Node{ops: n.ops, path: path.Join(n.path, name)}
}

// Lookup resolves name below n
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, attr, errno := n.lookup(ctx, name)
	if errno != 0 {
		return nil, errno
	}
	fillAttr(attr, callerFrom(ctx), &out.Attr)
	return n.NewInode(ctx, child, fs.StableAttr{Mode: attr.Type()}), 0
}

func (n *Node) lookup(ctx context.Context, name string) (*Node, *types.Attr, syscall.Errno) {
	child := n.child(name)
	attr, err := n.ops.Getattr(child.path, callerFrom(ctx))
	if err != nil {
		return nil, nil, Errno(err)
	}
	return child, attr, 0
}

// Getattr reports the metadata of n
func (n *Node) Getattr(ctx context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	caller := callerFrom(ctx)
	attr, err := n.ops.Getattr(n.path, caller)
	if err != nil {
		return Errno(err)
	}
	fillAttr(attr, caller, &out.Attr)
	return 0
}

// Setattr accepts size changes without effect; handlers own their content
func (n *Node) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := n.ops.Truncate(n.path, int64(size)); err != nil {
			return Errno(err)
		}
	}
	return n.Getattr(ctx, fh, out)
}

// Readdir lists n. The kernel adds "." and ".." itself.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := n.ops.Readdir(n.path)
	if err != nil {
		return nil, Errno(err)
	}

	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		if name == "." || name == ".." {
			continue
		}
		// Mode 0 reports DT_UNKNOWN; callers stat entries they care about.
		entries = append(entries, fuse.DirEntry{Name: name})
	}
	return fs.NewListDirStream(entries), 0
}

// Readlink returns the symlink target of n
func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.ops.Readlink(n.path)
	if err != nil {
		return nil, Errno(err)
	}
	return []byte(target), 0
}

// Open starts a session on n. Direct I/O keeps the kernel from trimming
// reads to the size Getattr reported.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	fh, err := n.ops.Open(n.path, int(flags))
	if err != nil {
		return nil, 0, Errno(err)
	}
	return &Handle{ops: n.ops, fh: fh}, fuse.FOPEN_DIRECT_IO, 0
}

// Handle is the kernel-side file handle of an open session
type Handle struct {
	ops filesystem.Operations
	fh  uint64
}

var (
	_ fs.FileReader   = (*Handle)(nil)
	_ fs.FileWriter   = (*Handle)(nil)
	_ fs.FileFlusher  = (*Handle)(nil)
	_ fs.FileReleaser = (*Handle)(nil)
)

// ID returns the session's handle id
func (h *Handle) ID() uint64 {
	return h.fh
}

// Read fills at most len(dest) bytes from off
func (h *Handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := h.ops.Read(h.fh, len(dest), off)
	if err != nil {
		return nil, Errno(err)
	}
	// encoded reads count characters, so the byte form may be longer
	if len(data) > len(dest) {
		data = data[:len(dest)]
	}
	return fuse.ReadResultData(data), 0
}

// Write stores data at off
func (h *Handle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := h.ops.Write(h.fh, data, off)
	if err != nil {
		return 0, Errno(err)
	}
	return clampUint32(n), 0
}

// Flush persists pending writes; its errno is what close(2) returns
func (h *Handle) Flush(ctx context.Context) syscall.Errno {
	return Errno(h.ops.Flush(h.fh))
}

// Release ends the session
func (h *Handle) Release(ctx context.Context) syscall.Errno {
	return Errno(h.ops.Release(h.fh))
}

func callerFrom(ctx context.Context) filesystem.Caller {
	c, ok := fuse.FromContext(ctx)
	if !ok || c == nil {
		return filesystem.Caller{UID: types.UnsetID, GID: types.UnsetID}
	}
	return filesystem.Caller{UID: c.Uid, GID: c.Gid, PID: c.Pid}
}

// fillAttr copies attr into out. Ownership a handler left unset becomes the
// caller's.
func fillAttr(attr *types.Attr, caller filesystem.Caller, out *fuse.Attr) {
	out.Mode = attr.Type() | attr.Mode&types.ModePermMask
	out.Nlink = attr.Nlink
	if out.Nlink == 0 {
		out.Nlink = 1
	}
	out.Uid = attr.UID
	if out.Uid == types.UnsetID {
		out.Uid = caller.UID
	}
	out.Gid = attr.GID
	if out.Gid == types.UnsetID {
		out.Gid = caller.GID
	}
	out.Size = clampUint64(attr.Size)
	out.SetTimes(timePtr(attr.Atime), timePtr(attr.Mtime), timePtr(attr.Ctime))
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func clampUint64(i int64) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

func clampUint32(i int) uint32 {
	if i < 0 {
		return 0
	}
	if uint64(i) > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(i)
}
