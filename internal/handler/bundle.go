package handler

import (
	"sync"

	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/types"
)

// FileType tags the kind of node a bundle presents when no stat callback is set
type FileType int

const (
	// Regular is a plain file
	Regular FileType = iota
	// Symlink is a symbolic link resolved through the link-target callback
	Symlink
)

// String returns a readable name for the file type
func (t FileType) String() string {
	switch t {
	case Symlink:
		return "symlink"
	default:
		return "regular"
	}
}

const (
	defaultFileMode    = types.ModeRegular | 0o644
	defaultSymlinkMode = types.ModeSymlink | 0o777
)

// Bundle holds the callbacks registered for a single path pattern
type Bundle struct {
	mu sync.RWMutex

	pattern    string
	read       types.ReadFunc
	write      types.WriteFunc
	stat       types.StatFunc
	linkTarget types.LinkTargetFunc
	codec      *Codec
	fileType   FileType
}

// NewBundle creates an empty bundle for pattern
func NewBundle(pattern string) *Bundle {
	return &Bundle{pattern: pattern}
}

// Pattern returns the pattern the bundle was created for
func (b *Bundle) Pattern() string {
	return b.pattern
}

// OnRead attaches the read callback and replaces the encoding. A nil codec
// means binary passthrough.
func (b *Bundle) OnRead(fn types.ReadFunc, codec *Codec) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.read = fn
	b.codec = codec
}

// OnWrite attaches the write callback and replaces the encoding
func (b *Bundle) OnWrite(fn types.WriteFunc, codec *Codec) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.write = fn
	b.codec = codec
}

// OnStat attaches the stat callback
func (b *Bundle) OnStat(fn types.StatFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stat = fn
}

// OnLinkTarget attaches the link-target callback and marks the bundle as a symlink
func (b *Bundle) OnLinkTarget(fn types.LinkTargetFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.linkTarget = fn
	b.fileType = Symlink
}

// FileType returns the current file type tag
func (b *Bundle) FileType() FileType {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fileType
}

// Codec returns the current encoding, or nil for binary passthrough
func (b *Bundle) Codec() *Codec {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.codec
}

// Stat returns metadata for path. Without a stat callback, or when the
// callback returns no record, a minimal record is synthesized from the
// file type tag.
func (b *Bundle) Stat(path string, params types.Params) (*types.Attr, error) {
	b.mu.RLock()
	fn, fileType := b.stat, b.fileType
	b.mu.RUnlock()

	if fn != nil {
		attr, err := fn(path, params)
		if err != nil {
			return nil, CallbackError(err, "stat", path)
		}
		if attr != nil {
			return attr, nil
		}
	}
	return defaultAttr(fileType), nil
}

// LinkTarget resolves the symlink target for path
func (b *Bundle) LinkTarget(path string, params types.Params) (string, error) {
	b.mu.RLock()
	fn, fileType := b.linkTarget, b.fileType
	b.mu.RUnlock()

	if fileType != Symlink || fn == nil {
		return "", errors.NewError(errors.ErrCodeNotSupported, "not a symlink: "+path).
			WithComponent("handler").
			WithOperation("readlink")
	}

	target, err := fn(path, params)
	if err != nil {
		return "", CallbackError(err, "readlink", path)
	}
	return target, nil
}

func (b *Bundle) callbacks() (types.ReadFunc, types.WriteFunc, *Codec) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.read, b.write, b.codec
}

func defaultAttr(fileType FileType) *types.Attr {
	mode := uint32(defaultFileMode)
	if fileType == Symlink {
		mode = defaultSymlinkMode
	}
	return &types.Attr{
		Mode:  mode,
		Nlink: 1,
		UID:   types.UnsetID,
		GID:   types.UnsetID,
	}
}

// CallbackError keeps a structured error returned by user code intact and
// wraps anything else as a handler failure.
func CallbackError(err error, operation, path string) error {
	if _, ok := errors.AsRouteFSError(err); ok {
		return err
	}
	return errors.Wrap(err, errors.ErrCodeHandlerFailure, operation+" callback failed").
		WithComponent("handler").
		WithOperation(operation).
		WithContext("path", path)
}
