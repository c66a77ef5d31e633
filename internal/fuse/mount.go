//go:build !cgofuse

package fuse

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/pkg/errors"
)

// MountManager mounts a filesystem through go-fuse
type MountManager struct {
	fsys   Mountable
	config config.MountConfig
	logger *logrus.Entry

	mu        sync.Mutex
	server    *fuse.Server
	mounted   bool
	mountedAt time.Time
	done      chan struct{}
}

// NewMountManager creates a mount manager for fsys
func NewMountManager(fsys Mountable, cfg config.MountConfig, logger *logrus.Entry) *MountManager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.FSName == "" {
		cfg.FSName = "routefs"
	}
	return &MountManager{
		fsys:   fsys,
		config: cfg,
		logger: logger.WithField("mount_point", cfg.MountPoint),
	}
}

// Mount mounts the filesystem and serves it in the background
func (m *MountManager) Mount(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeMountFailed, "mount cancelled").
			WithComponent("fuse")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "filesystem is already mounted").
			WithComponent("fuse").
			WithContext("mount_point", m.config.MountPoint)
	}

	if err := m.validateMountPoint(); err != nil {
		return err
	}

	server, err := fs.Mount(m.config.MountPoint, Root(m.fsys), m.buildFUSEOptions())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeMountFailed, "failed to mount filesystem").
			WithComponent("fuse").
			WithContext("mount_point", m.config.MountPoint)
	}

	done := make(chan struct{})
	m.server = server
	m.mounted = true
	m.mountedAt = time.Now()
	m.done = done
	m.logger.Info("Filesystem mounted")

	go func() {
		server.Wait()
		m.mu.Lock()
		if m.server == server {
			m.mounted = false
		}
		m.mu.Unlock()
		m.logger.Debug("FUSE server stopped")
		close(done)
	}()

	return nil
}

// Unmount detaches the mount and releases every handle still open
func (m *MountManager) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mounted || m.server == nil {
		return errors.NewError(errors.ErrCodeNotInitialized, "filesystem is not mounted").
			WithComponent("fuse")
	}

	m.logger.Info("Unmounting filesystem")
	if err := m.server.Unmount(); err != nil {
		m.logger.WithError(err).Warn("Normal unmount failed, trying lazy unmount")
		if forceErr := m.forceUnmount(); forceErr != nil {
			return errors.Wrap(err, errors.ErrCodeUnmountFailed, "unmount failed").
				WithComponent("fuse").
				WithContext("mount_point", m.config.MountPoint).
				WithDetail("force_error", forceErr.Error())
		}
	}

	m.mounted = false
	m.server = nil

	if err := m.fsys.Close(); err != nil {
		m.logger.WithError(err).Warn("Handles failed to close cleanly")
	}
	return nil
}

// IsMounted reports whether the filesystem is mounted
func (m *MountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// GetMountPoint returns the configured mount point
func (m *MountManager) GetMountPoint() string {
	return m.config.MountPoint
}

// Wait blocks until the kernel ends the mount
func (m *MountManager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// GetStats returns the mount's state
func (m *MountManager) GetStats() *FilesystemStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &FilesystemStats{
		MountPoint:  m.config.MountPoint,
		Mounted:     m.mounted,
		OpenHandles: m.fsys.OpenHandles(),
	}
	if m.mounted {
		stats.MountedAt = m.mountedAt
		stats.Uptime = time.Since(m.mountedAt)
	}
	return stats
}

func (m *MountManager) validateMountPoint() error {
	return validateMountPoint(m.config.MountPoint, mountsFile, m.logger)
}

func (m *MountManager) buildFUSEOptions() *fs.Options {
	attrTimeout := m.config.AttrTimeout
	entryTimeout := m.config.EntryTimeout

	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:        m.config.FSName,
			FsName:      m.config.FSName,
			DirectMount: true,
			Debug:       m.config.Debug,
			AllowOther:  m.config.AllowOther,
			MaxWrite:    m.config.MaxWrite,
		},
		AttrTimeout:     &attrTimeout,
		EntryTimeout:    &entryTimeout,
		NullPermissions: true,
	}
	return opts
}

func (m *MountManager) forceUnmount() error {
	// MNT_DETACH
	return syscall.Unmount(m.config.MountPoint, 2)
}
