package filesystem

import (
	"github.com/routefs/routefs/internal/handler"
	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/router"
	"github.com/routefs/routefs/pkg/types"
)

type registerOptions struct {
	encoding string
}

// RegisterOption configures a read or write registration
type RegisterOption func(*registerOptions)

// WithEncoding makes the handler exchange text in the named encoding.
// Offsets and lengths then count characters instead of bytes.
//
// Kernels pass byte offsets, and a read whose encoded form outgrows the
// kernel buffer is cut at the buffer size, possibly inside a multibyte
// character. Reads through a mount are therefore only exact for content
// that fits in one kernel read or encodes one byte per character, such as
// ASCII text or latin1. Callers that read files larger than one kernel read
// (128KiB on Linux) should register without an encoding and decode the
// bytes themselves.
func WithEncoding(name string) RegisterOption {
	return func(o *registerOptions) {
		o.encoding = name
	}
}

// OnRead registers fn as the read handler for pattern
func (fs *FileSystem) OnRead(pattern string, fn types.ReadFunc, opts ...RegisterOption) error {
	if fn == nil {
		return nilCallback(pattern, "read")
	}
	codec, err := resolveCodec(opts)
	if err != nil {
		return err
	}
	b, err := fs.bundle(pattern)
	if err != nil {
		return err
	}
	b.OnRead(fn, codec)
	fs.logRegistration(pattern, "read", codec)
	return nil
}

// OnWrite registers fn as the write handler for pattern
func (fs *FileSystem) OnWrite(pattern string, fn types.WriteFunc, opts ...RegisterOption) error {
	if fn == nil {
		return nilCallback(pattern, "write")
	}
	codec, err := resolveCodec(opts)
	if err != nil {
		return err
	}
	b, err := fs.bundle(pattern)
	if err != nil {
		return err
	}
	b.OnWrite(fn, codec)
	fs.logRegistration(pattern, "write", codec)
	return nil
}

// OnStat registers fn as the metadata handler for pattern
func (fs *FileSystem) OnStat(pattern string, fn types.StatFunc) error {
	if fn == nil {
		return nilCallback(pattern, "stat")
	}
	b, err := fs.bundle(pattern)
	if err != nil {
		return err
	}
	b.OnStat(fn)
	fs.logRegistration(pattern, "stat", nil)
	return nil
}

// OnLinkTarget registers fn as the symlink target handler for pattern and
// makes paths under it symlinks
func (fs *FileSystem) OnLinkTarget(pattern string, fn types.LinkTargetFunc) error {
	if fn == nil {
		return nilCallback(pattern, "readlink")
	}
	b, err := fs.bundle(pattern)
	if err != nil {
		return err
	}
	b.OnLinkTarget(fn)
	fs.logRegistration(pattern, "readlink", nil)
	return nil
}

// OnList registers fn as the directory listing handler for pattern
func (fs *FileSystem) OnList(pattern string, fn types.ListFunc) error {
	if fn == nil {
		return nilCallback(pattern, "list")
	}
	if err := fs.listRoutes.Add(pattern, fn); err != nil {
		return err
	}
	fs.logRegistration(pattern, "list", nil)
	return nil
}

// Patterns returns the patterns that have a handler bundle
func (fs *FileSystem) Patterns() []string {
	return fs.routes.Patterns()
}

// bundle returns the bundle for pattern, creating and routing it on first use
func (fs *FileSystem) bundle(pattern string) (*handler.Bundle, error) {
	key := router.Join(router.Split(pattern))

	fs.regMu.Lock()
	defer fs.regMu.Unlock()

	if b, ok := fs.bundles[key]; ok {
		return b, nil
	}

	b := handler.NewBundle(key)
	if err := fs.routes.Add(key, b); err != nil {
		return nil, err
	}
	fs.bundles[key] = b
	return b, nil
}

func resolveCodec(opts []RegisterOption) (*handler.Codec, error) {
	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.encoding == "" {
		return nil, nil
	}
	return handler.NewCodec(o.encoding)
}

func (fs *FileSystem) logRegistration(pattern, kind string, codec *handler.Codec) {
	entry := fs.logger.WithField("pattern", pattern).WithField("handler", kind)
	if codec != nil {
		entry = entry.WithField("encoding", codec.Name())
	}
	entry.Debug("Registered handler")
}

func nilCallback(pattern, kind string) error {
	return errors.Newf(errors.ErrCodeInvalidConfig, "nil %s handler for %s", kind, pattern).
		WithComponent("filesystem")
}
