// Package local mirrors a host directory through a routefs filesystem.
package local

import (
	stderrors "errors"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"

	rconfig "github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/filesystem"
	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/types"
	"github.com/routefs/routefs/pkg/utils"
)

// FileParam is the capture name of the mirror's file routes
const FileParam = "file"

// Source serves the tree under root. Every mounted path maps to the host
// path of the same name below root.
type Source struct {
	root     string
	readOnly bool
	encoding string
	logger   *logrus.Entry
}

// New creates a mirror of root, which must be an existing directory
func New(root string, cfg rconfig.LocalSourceConfig, logger *logrus.Entry) (*Source, error) {
	if err := utils.ValidateAbsDir(root); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceInvalid, "invalid source directory").
			WithComponent("local")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceInvalid, "cannot access source directory").
			WithComponent("local").
			WithContext("root", root)
	}
	if !info.IsDir() {
		return nil, errors.NewError(errors.ErrCodeSourceInvalid, "source is not a directory").
			WithComponent("local").
			WithContext("root", root)
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Source{
		root:     root,
		readOnly: cfg.ReadOnly,
		encoding: cfg.Encoding,
		logger:   logger.WithField("root", root),
	}, nil
}

// Register installs the mirror's handlers on fs
func (s *Source) Register(fsys *filesystem.FileSystem) error {
	pattern := "*" + FileParam

	var opts []filesystem.RegisterOption
	if s.encoding != "" {
		opts = append(opts, filesystem.WithEncoding(s.encoding))
	}

	if err := fsys.OnRead(pattern, s.read, opts...); err != nil {
		return err
	}
	if !s.readOnly {
		if err := fsys.OnWrite(pattern, s.write, opts...); err != nil {
			return err
		}
	}
	if err := fsys.OnStat(pattern, s.stat); err != nil {
		return err
	}
	if err := fsys.OnList("/", s.list); err != nil {
		return err
	}
	return fsys.OnList(pattern, s.list)
}

// Close is a no-op
func (s *Source) Close() error {
	return nil
}

func (s *Source) hostPath(params types.Params) (string, error) {
	return utils.HostPath(s.root, params.Get(FileParam))
}

func (s *Source) read(_ string, params types.Params) (types.Stream, error) {
	host, err := s.hostPath(params)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(host)
	if err != nil {
		return nil, translate(err, "read", host)
	}
	return f, nil
}

// write truncates the host file, creating it when missing
func (s *Source) write(_ string, params types.Params) (types.Stream, error) {
	host, err := s.hostPath(params)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(host, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, translate(err, "write", host)
	}
	s.logger.WithField("file", host).Debug("Truncated for writing")
	return f, nil
}

func (s *Source) stat(_ string, params types.Params) (*types.Attr, error) {
	host, err := s.hostPath(params)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(host)
	if err != nil {
		return nil, translate(err, "stat", host)
	}
	return attrFromInfo(info), nil
}

func (s *Source) list(_ string, params types.Params) ([]string, error) {
	host, err := s.hostPath(params)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(host)
	if err != nil {
		return nil, translate(err, "list", host)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func translate(err error, operation, host string) error {
	code := errors.ErrCodeHandlerFailure
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		code = errors.ErrCodeFileNotFound
	case stderrors.Is(err, fs.ErrPermission):
		code = errors.ErrCodePermissionDenied
	}
	return errors.Wrap(err, code, operation+" "+host).
		WithComponent("local").
		WithOperation(operation)
}

// posixMode converts Go file mode bits to the POSIX layout of types.Attr
func posixMode(mode fs.FileMode) uint32 {
	perm := uint32(mode.Perm())
	if mode&fs.ModeSetuid != 0 {
		perm |= 0o4000
	}
	if mode&fs.ModeSetgid != 0 {
		perm |= 0o2000
	}
	if mode&fs.ModeSticky != 0 {
		perm |= 0o1000
	}
	switch {
	case mode.IsDir():
		return types.ModeDir | perm
	case mode&fs.ModeSymlink != 0:
		return types.ModeSymlink | perm
	default:
		return types.ModeRegular | perm
	}
}
