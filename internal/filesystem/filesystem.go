package filesystem

import (
	stderrors "errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/routefs/routefs/internal/handler"
	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/router"
	"github.com/routefs/routefs/pkg/types"
)

// FileSystem routes kernel callbacks to registered handlers
type FileSystem struct {
	routes     *router.Router[*handler.Bundle]
	listRoutes *router.Router[types.ListFunc]

	regMu   sync.Mutex
	bundles map[string]*handler.Bundle

	handles *handleTable

	logger  *logrus.Entry
	metrics types.MetricsCollector
	clock   func() time.Time
	started time.Time
}

// Option configures a FileSystem
type Option func(*FileSystem)

// WithLogger sets the logger used for per-operation debug output
func WithLogger(logger *logrus.Entry) Option {
	return func(fs *FileSystem) {
		if logger != nil {
			fs.logger = logger
		}
	}
}

// WithMetrics reports every operation to collector
func WithMetrics(collector types.MetricsCollector) Option {
	return func(fs *FileSystem) {
		fs.metrics = collector
	}
}

// WithClock overrides the time source
func WithClock(clock func() time.Time) Option {
	return func(fs *FileSystem) {
		if clock != nil {
			fs.clock = clock
		}
	}
}

// New creates a FileSystem with no registered handlers
func New(opts ...Option) *FileSystem {
	fs := &FileSystem{
		routes:     router.New[*handler.Bundle](),
		listRoutes: router.New[types.ListFunc](),
		bundles:    make(map[string]*handler.Bundle),
		handles:    newHandleTable(),
		logger:     logrus.NewEntry(logrus.StandardLogger()),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.logger = fs.logger.WithField("component", "filesystem")
	fs.started = fs.clock()
	return fs
}

// StartTime returns the timestamp reported for synthetic directories
func (fs *FileSystem) StartTime() time.Time {
	return fs.started
}

// OpenHandles returns the number of handles not yet released
func (fs *FileSystem) OpenHandles() int {
	return fs.handles.Len()
}

// Getattr returns metadata for path. Registered paths answer through their
// bundle; paths implied by registered patterns, and the root, are reported
// as directories owned by the caller.
func (fs *FileSystem) Getattr(path string, caller Caller) (attr *types.Attr, err error) {
	op := fs.begin("getattr", logrus.Fields{"path": path})
	defer func() { op.end(recover(), 0, &err) }()

	match, ok := fs.routes.Lookup(path)
	if !ok {
		return nil, notFound(path, "getattr")
	}
	if !match.Leaf {
		return fs.dirAttr(caller), nil
	}
	return match.Data.Stat(path, match.Params)
}

// Readdir lists path. The result always starts with "." and "..". A list
// handler matching path, by literal or by capture, supplies the rest;
// otherwise the names implied by registered patterns are used. Literal list
// routes below path never hide a capture route that matches path itself.
func (fs *FileSystem) Readdir(path string) (names []string, err error) {
	op := fs.begin("readdir", logrus.Fields{"path": path})
	defer func() { op.end(recover(), 0, &err) }()

	names = []string{".", ".."}

	if match, ok := fs.listRoutes.LookupLeaf(path); ok {
		listed, err := match.Data(path, match.Params)
		if err != nil {
			return nil, handler.CallbackError(err, "readdir", path)
		}
		return append(names, listed...), nil
	}

	return append(names, fs.routes.List(path)...), nil
}

// Readlink resolves the target of a symlink path
func (fs *FileSystem) Readlink(path string) (target string, err error) {
	op := fs.begin("readlink", logrus.Fields{"path": path})
	defer func() { op.end(recover(), 0, &err) }()

	match, ok := fs.routes.Lookup(path)
	if !ok {
		return "", notFound(path, "readlink")
	}
	if !match.Leaf {
		return "", errors.NewError(errors.ErrCodeNotSupported, "directory is not a symlink: "+path).
			WithComponent("filesystem").
			WithOperation("readlink")
	}
	return match.Data.LinkTarget(path, match.Params)
}

// Open starts a session on path and returns its handle id. Append mode is
// refused before any lookup.
func (fs *FileSystem) Open(path string, flags int) (fh uint64, err error) {
	op := fs.begin("open", logrus.Fields{"path": path, "flags": flags})
	defer func() { op.end(recover(), 0, &err) }()

	if flags&os.O_APPEND != 0 {
		return 0, errors.NewError(errors.ErrCodePermissionDenied, "append mode is not supported").
			WithComponent("filesystem").
			WithOperation("open").
			WithContext("path", path)
	}

	match, ok := fs.routes.Lookup(path)
	if !ok {
		return 0, notFound(path, "open")
	}
	if !match.Leaf {
		return 0, errors.NewError(errors.ErrCodeNotSupported, "cannot open directory "+path).
			WithComponent("filesystem").
			WithOperation("open")
	}

	h, err := handler.Open(match.Data, path, match.Params, flags)
	if err != nil {
		return 0, err
	}

	fh = fs.handles.Add(h)
	op.fields["fh"] = fh
	fs.reportOpenHandles()
	return fh, nil
}

// Read returns up to length units of the open file fh starting at offset
func (fs *FileSystem) Read(fh uint64, length int, offset int64) (data []byte, err error) {
	op := fs.begin("read", logrus.Fields{"fh": fh, "length": length, "offset": offset})
	defer func() { op.end(recover(), int64(len(data)), &err) }()

	h, err := fs.handles.Get(fh)
	if err != nil {
		return nil, err
	}
	return h.Read(length, offset)
}

// Write stores data at offset in the open file fh
func (fs *FileSystem) Write(fh uint64, data []byte, offset int64) (n int, err error) {
	op := fs.begin("write", logrus.Fields{"fh": fh, "length": len(data), "offset": offset})
	defer func() { op.end(recover(), int64(n), &err) }()

	h, err := fs.handles.Get(fh)
	if err != nil {
		return 0, err
	}
	return h.Write(data, offset)
}

// Flush persists pending writes of fh. Kernels call it on every close(2),
// so its error reaches the writer, unlike Release's.
func (fs *FileSystem) Flush(fh uint64) (err error) {
	op := fs.begin("flush", logrus.Fields{"fh": fh})
	defer func() { op.end(recover(), 0, &err) }()

	h, err := fs.handles.Get(fh)
	if err != nil {
		return err
	}
	return h.Flush()
}

// Release closes fh. The id is removed from the table before the stream is
// closed, so it is gone even when the close fails.
func (fs *FileSystem) Release(fh uint64) (err error) {
	op := fs.begin("release", logrus.Fields{"fh": fh})
	defer func() { op.end(recover(), 0, &err) }()

	h, err := fs.handles.Remove(fh)
	if err != nil {
		return err
	}
	fs.reportOpenHandles()
	return h.Release()
}

// Truncate does nothing. File length is owned by the handlers.
func (fs *FileSystem) Truncate(path string, size int64) (err error) {
	op := fs.begin("truncate", logrus.Fields{"path": path, "size": size})
	defer func() { op.end(recover(), 0, &err) }()
	return nil
}

// Close releases every handle still open
func (fs *FileSystem) Close() error {
	var errs []error
	for fh, h := range fs.handles.Drain() {
		if err := fs.releaseQuietly(h); err != nil {
			errs = append(errs, fmt.Errorf("handle %d: %w", fh, err))
		}
	}
	fs.reportOpenHandles()
	return stderrors.Join(errs...)
}

func (fs *FileSystem) releaseQuietly(h *handler.Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodePanicRecovered, "panic while closing %s: %v", h.Path(), r).
				WithComponent("filesystem").
				WithOperation("close")
		}
	}()
	return h.Release()
}

func (fs *FileSystem) dirAttr(caller Caller) *types.Attr {
	return &types.Attr{
		Mode:  DirMode,
		Nlink: 1,
		UID:   caller.UID,
		GID:   caller.GID,
		Atime: fs.started,
		Mtime: fs.started,
		Ctime: fs.started,
	}
}

func (fs *FileSystem) reportOpenHandles() {
	if fs.metrics != nil {
		fs.metrics.SetOpenHandles(fs.handles.Len())
	}
}

func notFound(path, operation string) error {
	return errors.NewError(errors.ErrCodeFileNotFound, "no route for "+path).
		WithComponent("filesystem").
		WithOperation(operation).
		WithContext("path", path)
}
