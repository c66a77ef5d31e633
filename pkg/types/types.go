package types

import (
	"io"
	"time"
)

// POSIX file type bits carried in Attr.Mode. They are spelled out here so the
// routing core builds on every platform the FUSE bindings support.
const (
	ModeTypeMask uint32 = 0170000
	ModeDir      uint32 = 0040000
	ModeRegular  uint32 = 0100000
	ModeSymlink  uint32 = 0120000
	ModePermMask uint32 = 0007777
)

// UnsetID marks ownership that no handler supplied.
const UnsetID = ^uint32(0)

// Attr is the metadata record returned for every matched path
type Attr struct {
	Mode  uint32    `json:"mode"`
	Nlink uint32    `json:"nlink"`
	UID   uint32    `json:"uid"`
	GID   uint32    `json:"gid"`
	Size  int64     `json:"size"`
	Atime time.Time `json:"atime"`
	Mtime time.Time `json:"mtime"`
	Ctime time.Time `json:"ctime"`
}

// IsDir reports whether the record describes a directory
func (a *Attr) IsDir() bool {
	return a.Mode&ModeTypeMask == ModeDir
}

// IsSymlink reports whether the record describes a symbolic link
func (a *Attr) IsSymlink() bool {
	return a.Mode&ModeTypeMask == ModeSymlink
}

// Type returns the file type bits, defaulting to a regular file when a
// handler returned permission bits only.
func (a *Attr) Type() uint32 {
	if t := a.Mode & ModeTypeMask; t != 0 {
		return t
	}
	return ModeRegular
}

// Params maps capture names to the path text they consumed
type Params map[string]string

// Get returns the captured value for name or the empty string
func (p Params) Get(name string) string {
	if p == nil {
		return ""
	}
	return p[name]
}

// Stream is the backing data of one open session. *os.File satisfies it.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// Flusher is implemented by streams that can persist pending writes before
// they are closed
type Flusher interface {
	Flush() error
}

// Handler callbacks. path is the concrete path the kernel asked for and
// params holds the captures of the pattern the path matched.
type (
	ReadFunc       func(path string, params Params) (Stream, error)
	WriteFunc      func(path string, params Params) (Stream, error)
	StatFunc       func(path string, params Params) (*Attr, error)
	ListFunc       func(path string, params Params) ([]string, error)
	LinkTargetFunc func(path string, params Params) (string, error)
)

// MetricsCollector receives per-operation measurements from the filesystem
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordError(operation string, err error)
	SetOpenHandles(count int)
	GetMetrics() map[string]interface{}
}
