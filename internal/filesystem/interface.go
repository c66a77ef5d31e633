// Package filesystem implements the kernel callback surface on top of the
// path router, the handler bundles and the open-handle table. Kernel bindings
// in internal/fuse translate their protocol into calls on Operations.
package filesystem

import (
	"github.com/routefs/routefs/pkg/types"
)

// Operations is the path-based callback set a kernel binding drives. Every
// method is safe for concurrent use. Errors are *errors.RouteFSError values
// whose code the binding maps to an errno.
type Operations interface {
	Getattr(path string, caller Caller) (*types.Attr, error)
	Readdir(path string) ([]string, error)
	Readlink(path string) (string, error)
	Open(path string, flags int) (uint64, error)
	Read(fh uint64, length int, offset int64) ([]byte, error)
	Write(fh uint64, data []byte, offset int64) (int, error)
	Flush(fh uint64) error
	Release(fh uint64) error
	Truncate(path string, size int64) error
}

// Caller identifies the process on whose behalf the kernel issued a request
type Caller struct {
	UID uint32
	GID uint32
	PID uint32
}

// DirMode is the mode reported for directories implied by registered patterns
const DirMode = types.ModeDir | 0o755

var _ Operations = (*FileSystem)(nil)
