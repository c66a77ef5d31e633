package adapter

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/filesystem"
	"github.com/routefs/routefs/internal/fuse"
	"github.com/routefs/routefs/internal/metrics"
	"github.com/routefs/routefs/internal/sources/local"
	s3source "github.com/routefs/routefs/internal/sources/s3"
	"github.com/routefs/routefs/pkg/errors"
	"github.com/routefs/routefs/pkg/utils"
)

// Source schemes accepted by New
const (
	SchemeFile = "file"
	SchemeS3   = "s3"
)

// Source is a set of handlers registered into the filesystem at startup
type Source interface {
	Register(fs *filesystem.FileSystem) error
	Close() error
}

// MountFactory builds the platform mount for a filesystem
type MountFactory func(fsys fuse.Mountable, cfg config.MountConfig, logger *logrus.Entry) fuse.PlatformFileSystem

// S3APIFactory builds the bucket client used by the s3 source
type S3APIFactory func(ctx context.Context, cfg config.S3SourceConfig) (s3source.API, error)

// Option customizes an Adapter
type Option func(*Adapter)

// WithLogger replaces the logger built from the global configuration
func WithLogger(logger *logrus.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithMountFactory replaces the platform mount manager
func WithMountFactory(factory MountFactory) Option {
	return func(a *Adapter) {
		a.newMount = factory
	}
}

// WithS3API replaces the bucket client constructor
func WithS3API(factory S3APIFactory) Option {
	return func(a *Adapter) {
		a.newS3API = factory
	}
}

// SourceSpec is a parsed source URI
type SourceSpec struct {
	Scheme string
	// Root is the host directory of a file source
	Root string
	// Bucket and Prefix locate an s3 source
	Bucket string
	Prefix string
}

// Adapter wires a source, the filesystem and the mount together
type Adapter struct {
	sourceURI  string
	mountPoint string
	target     SourceSpec
	config     *config.Configuration
	instanceID string

	logger   *logrus.Logger
	newMount MountFactory
	newS3API S3APIFactory

	mu       sync.Mutex
	started  bool
	log      *logrus.Entry
	fs       *filesystem.FileSystem
	metrics  *metrics.Collector
	source   Source
	mount    fuse.PlatformFileSystem
	cancelFn context.CancelFunc
}

// New creates an adapter serving sourceURI at mountPoint
func New(ctx context.Context, sourceURI, mountPoint string, cfg *config.Configuration, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid configuration").
			WithComponent("adapter")
	}

	target, err := ParseSource(sourceURI)
	if err != nil {
		return nil, err
	}
	if mountPoint == "" {
		return nil, errors.NewError(errors.ErrCodeMountFailed, "mount point is required").
			WithComponent("adapter")
	}

	a := &Adapter{
		sourceURI:  sourceURI,
		mountPoint: mountPoint,
		target:     target,
		config:     cfg,
		instanceID: uuid.New().String(),
		newMount:   fuse.CreatePlatformMountManager,
		newS3API: func(ctx context.Context, cfg config.S3SourceConfig) (s3source.API, error) {
			return s3source.NewClient(ctx, cfg)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ParseSource parses file:///abs/dir and s3://bucket[/prefix] URIs
func ParseSource(uri string) (SourceSpec, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return SourceSpec{}, invalidSource(uri, "malformed URI")
	}

	switch u.Scheme {
	case SchemeFile:
		if u.Host != "" && u.Host != "localhost" {
			return SourceSpec{}, invalidSource(uri, "file URI must not name a remote host")
		}
		if u.Path == "" || !filepath.IsAbs(u.Path) {
			return SourceSpec{}, invalidSource(uri, "file URI must hold an absolute path")
		}
		return SourceSpec{Scheme: SchemeFile, Root: filepath.Clean(u.Path)}, nil
	case SchemeS3:
		if u.Host == "" {
			return SourceSpec{}, invalidSource(uri, "bucket name is required")
		}
		prefix := strings.Trim(path.Clean("/"+u.Path), "/")
		return SourceSpec{Scheme: SchemeS3, Bucket: u.Host, Prefix: prefix}, nil
	default:
		return SourceSpec{}, invalidSource(uri, "unsupported scheme "+u.Scheme)
	}
}

// Start builds the filesystem, registers the source and mounts it
func (a *Adapter) Start(ctx context.Context) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "adapter already started").
			WithComponent("adapter")
	}

	if a.logger == nil {
		logger, err := utils.SetupLogging(a.config.Global.LogLevel, a.config.Global.LogFile, a.config.Global.LogFormat)
		if err != nil {
			return err
		}
		a.logger = logger
	}
	a.log = utils.ComponentLogger(a.logger, "adapter").WithFields(logrus.Fields{
		"instance": a.instanceID,
		"source":   a.sourceURI,
	})

	srcCtx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err != nil {
			_ = a.teardown(ctx)
			cancel()
		}
	}()
	a.cancelFn = cancel

	m := a.config.Monitoring.Metrics
	a.metrics, err = metrics.NewCollector(&metrics.Config{
		Enabled:   m.Enabled,
		Port:      m.Port,
		Path:      m.Path,
		Labels:    m.Labels,
		Namespace: m.Namespace,
	}, a.log)
	if err != nil {
		return err
	}
	if err = a.metrics.Start(ctx); err != nil {
		return err
	}

	a.fs = filesystem.New(
		filesystem.WithLogger(utils.ComponentLogger(a.logger, "filesystem").WithField("instance", a.instanceID)),
		filesystem.WithMetrics(a.metrics),
	)

	a.source, err = a.buildSource(srcCtx)
	if err != nil {
		return err
	}
	if err = a.source.Register(a.fs); err != nil {
		return err
	}

	mountCfg := a.config.Mount
	mountCfg.MountPoint = a.mountPoint
	a.mount = a.newMount(a.fs, mountCfg, utils.ComponentLogger(a.logger, "fuse"))
	if err = a.mount.Mount(ctx); err != nil {
		a.mount = nil
		return err
	}

	a.started = true
	a.log.WithFields(logrus.Fields{
		"mount_point": a.mountPoint,
		"patterns":    len(a.fs.Patterns()),
	}).Info("RouteFS started")
	return nil
}

// Stop unmounts the filesystem and releases the source
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return errors.NewError(errors.ErrCodeNotInitialized, "adapter not started").
			WithComponent("adapter")
	}

	err := a.teardown(ctx)
	if a.cancelFn != nil {
		a.cancelFn()
	}
	a.started = false
	a.log.Info("RouteFS stopped")
	return err
}

// Wait blocks until the mount stops serving
func (a *Adapter) Wait() {
	a.mu.Lock()
	mount := a.mount
	a.mu.Unlock()
	if mount != nil {
		mount.Wait()
	}
}

// InstanceID identifies this adapter in logs
func (a *Adapter) InstanceID() string {
	return a.instanceID
}

// Source returns the parsed source URI
func (a *Adapter) Source() SourceSpec {
	return a.target
}

// Stats returns the mount state and operation counters
func (a *Adapter) Stats() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := map[string]interface{}{
		"instance": a.instanceID,
		"source":   a.sourceURI,
		"started":  a.started,
	}
	if a.mount != nil {
		stats["mount"] = a.mount.GetStats()
	}
	if a.metrics != nil {
		stats["operations"] = a.metrics.GetMetrics()
	}
	return stats
}

func (a *Adapter) buildSource(ctx context.Context) (Source, error) {
	logger := utils.ComponentLogger(a.logger, "source").WithField("instance", a.instanceID)

	switch a.target.Scheme {
	case SchemeFile:
		return local.New(a.target.Root, a.config.Sources.Local, logger)
	case SchemeS3:
		api, err := a.newS3API(ctx, a.config.Sources.S3)
		if err != nil {
			return nil, err
		}
		return s3source.New(ctx, api, a.target.Bucket, a.target.Prefix, a.config.Sources.S3, logger)
	default:
		return nil, invalidSource(a.sourceURI, "unsupported scheme "+a.target.Scheme)
	}
}

// teardown releases whatever Start managed to build; the first failure wins
func (a *Adapter) teardown(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if a.mount != nil {
		if err := a.mount.Unmount(); err != nil {
			a.log.WithError(err).Error("Failed to unmount filesystem")
			keep(err)
		}
	}
	if a.fs != nil {
		keep(a.fs.Close())
	}
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.log.WithError(err).Warn("Source did not close cleanly")
			keep(err)
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Stop(ctx); err != nil {
			a.log.WithError(err).Warn("Metrics server did not stop cleanly")
			keep(err)
		}
	}

	a.mount = nil
	a.fs = nil
	a.source = nil
	a.metrics = nil
	return first
}

func invalidSource(uri, reason string) error {
	return errors.Newf(errors.ErrCodeSourceInvalid, "invalid source URI: %s", reason).
		WithComponent("adapter").
		WithContext("source", uri)
}
