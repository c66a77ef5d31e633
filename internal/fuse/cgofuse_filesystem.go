//go:build cgofuse

package fuse

import (
	"os"
	"sync"
	"syscall"

	cgofuse "github.com/winfsp/cgofuse/fuse"

	"github.com/routefs/routefs/internal/filesystem"
	"github.com/routefs/routefs/pkg/types"
)

// CgoFuseFS adapts Operations to cgofuse's path-based interface
type CgoFuseFS struct {
	cgofuse.FileSystemBase

	ops       filesystem.Operations
	readyOnce sync.Once
	ready     chan struct{}
}

// NewCgoFuseFS wraps ops for a cgofuse host
func NewCgoFuseFS(ops filesystem.Operations) *CgoFuseFS {
	return &CgoFuseFS{ops: ops, ready: make(chan struct{})}
}

// Init signals that the host finished mounting
func (c *CgoFuseFS) Init() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// Getattr fills stat for path
func (c *CgoFuseFS) Getattr(path string, stat *cgofuse.Stat_t, fh uint64) int {
	caller := cgoCaller()
	attr, err := c.ops.Getattr(path, caller)
	if err != nil {
		return cgoErrno(err)
	}
	fillStat(attr, caller, stat)
	return 0
}

// Truncate is accepted without effect
func (c *CgoFuseFS) Truncate(path string, size int64, fh uint64) int {
	return cgoErrno(c.ops.Truncate(path, size))
}

// Opendir has nothing to open; listings are produced per Readdir call
func (c *CgoFuseFS) Opendir(path string) (int, uint64) {
	return 0, ^uint64(0)
}

// Releasedir pairs with Opendir
func (c *CgoFuseFS) Releasedir(path string, fh uint64) int {
	return 0
}

// Readdir lists path
func (c *CgoFuseFS) Readdir(path string,
	fill func(name string, stat *cgofuse.Stat_t, ofst int64) bool,
	ofst int64, fh uint64) int {
	names, err := c.ops.Readdir(path)
	if err != nil {
		return cgoErrno(err)
	}
	for _, name := range names {
		if !fill(name, nil, 0) {
			break
		}
	}
	return 0
}

// Readlink returns the target of the symlink at path
func (c *CgoFuseFS) Readlink(path string) (int, string) {
	target, err := c.ops.Readlink(path)
	if err != nil {
		return cgoErrno(err), ""
	}
	return 0, target
}

// Open starts a session on path
func (c *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	fh, err := c.ops.Open(path, hostFlags(flags))
	if err != nil {
		return cgoErrno(err), ^uint64(0)
	}
	return 0, fh
}

// Read copies data of session fh into buff
func (c *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	data, err := c.ops.Read(fh, len(buff), ofst)
	if err != nil {
		return cgoErrno(err)
	}
	return copy(buff, data)
}

// Write stores buff in session fh
func (c *CgoFuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	n, err := c.ops.Write(fh, buff, ofst)
	if err != nil {
		return cgoErrno(err)
	}
	return n
}

// Flush persists pending writes of session fh
func (c *CgoFuseFS) Flush(path string, fh uint64) int {
	return cgoErrno(c.ops.Flush(fh))
}

// Release ends session fh
func (c *CgoFuseFS) Release(path string, fh uint64) int {
	return cgoErrno(c.ops.Release(fh))
}

// hostFlags converts cgofuse's portable open flags to os flags
func hostFlags(flags int) int {
	var out int
	switch flags & cgofuse.O_ACCMODE {
	case cgofuse.O_WRONLY:
		out = os.O_WRONLY
	case cgofuse.O_RDWR:
		out = os.O_RDWR
	default:
		out = os.O_RDONLY
	}
	if flags&cgofuse.O_APPEND != 0 {
		out |= os.O_APPEND
	}
	if flags&cgofuse.O_TRUNC != 0 {
		out |= os.O_TRUNC
	}
	return out
}

func cgoCaller() filesystem.Caller {
	uid, gid, pid := cgofuse.Getcontext()
	return filesystem.Caller{UID: uid, GID: gid, PID: uint32(pid)}
}

func cgoErrno(err error) int {
	switch Errno(err) {
	case 0:
		return 0
	case syscall.ENOENT:
		return -cgofuse.ENOENT
	case syscall.EACCES:
		return -cgofuse.EACCES
	case syscall.EPERM:
		return -cgofuse.EPERM
	case syscall.EBADF:
		return -cgofuse.EBADF
	default:
		return -cgofuse.EIO
	}
}

func fillStat(attr *types.Attr, caller filesystem.Caller, stat *cgofuse.Stat_t) {
	stat.Mode = attr.Type() | attr.Mode&types.ModePermMask
	stat.Nlink = attr.Nlink
	if stat.Nlink == 0 {
		stat.Nlink = 1
	}
	stat.Uid = attr.UID
	if stat.Uid == types.UnsetID {
		stat.Uid = caller.UID
	}
	stat.Gid = attr.GID
	if stat.Gid == types.UnsetID {
		stat.Gid = caller.GID
	}
	stat.Size = attr.Size
	stat.Atim = cgofuse.NewTimespec(attr.Atime)
	stat.Mtim = cgofuse.NewTimespec(attr.Mtime)
	stat.Ctim = cgofuse.NewTimespec(attr.Ctime)
}
