//go:build cgofuse

package fuse

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	cgofuse "github.com/winfsp/cgofuse/fuse"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/pkg/errors"
)

// CgoFuseMountManager mounts a filesystem through cgofuse
type CgoFuseMountManager struct {
	fsys   Mountable
	config config.MountConfig
	logger *logrus.Entry

	mu        sync.Mutex
	host      *cgofuse.FileSystemHost
	mounted   bool
	mountedAt time.Time
	done      chan struct{}
}

// NewCgoFuseMountManager creates a cgofuse mount manager for fsys
func NewCgoFuseMountManager(fsys Mountable, cfg config.MountConfig, logger *logrus.Entry) *CgoFuseMountManager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.FSName == "" {
		cfg.FSName = "routefs"
	}
	return &CgoFuseMountManager{
		fsys:   fsys,
		config: cfg,
		logger: logger.WithField("mount_point", cfg.MountPoint),
	}
}

// Mount starts the host and returns once the kernel has initialized it
func (m *CgoFuseMountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return errors.NewError(errors.ErrCodeAlreadyStarted, "filesystem is already mounted").
			WithComponent("fuse").
			WithContext("mount_point", m.config.MountPoint)
	}
	if runtime.GOOS != "windows" {
		if err := validateMountPoint(m.config.MountPoint, mountsFile, m.logger); err != nil {
			return err
		}
	}

	binding := NewCgoFuseFS(m.fsys)
	host := cgofuse.NewFileSystemHost(binding)
	failed := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		if !host.Mount(m.config.MountPoint, m.mountOptions()) {
			close(failed)
		}
	}()

	select {
	case <-binding.ready:
	case <-failed:
		return errors.NewError(errors.ErrCodeMountFailed, "cgofuse host failed to mount").
			WithComponent("fuse").
			WithContext("mount_point", m.config.MountPoint)
	case <-ctx.Done():
		host.Unmount()
		return errors.Wrap(ctx.Err(), errors.ErrCodeMountFailed, "mount cancelled").
			WithComponent("fuse")
	}

	m.host = host
	m.mounted = true
	m.mountedAt = time.Now()
	m.done = done
	m.logger.Info("Filesystem mounted")
	return nil
}

// Unmount detaches the mount and releases every handle still open
func (m *CgoFuseMountManager) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mounted || m.host == nil {
		return errors.NewError(errors.ErrCodeNotInitialized, "filesystem is not mounted").
			WithComponent("fuse")
	}
	if !m.host.Unmount() {
		return errors.NewError(errors.ErrCodeUnmountFailed, "cgofuse host refused to unmount").
			WithComponent("fuse").
			WithContext("mount_point", m.config.MountPoint)
	}

	m.mounted = false
	m.host = nil
	if err := m.fsys.Close(); err != nil {
		m.logger.WithError(err).Warn("Handles failed to close cleanly")
	}
	m.logger.Info("Filesystem unmounted")
	return nil
}

// IsMounted reports whether the filesystem is mounted
func (m *CgoFuseMountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// Wait blocks until the host stops serving
func (m *CgoFuseMountManager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// GetStats returns the mount's state
func (m *CgoFuseMountManager) GetStats() *FilesystemStats {
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

func (m *CgoFuseMountManager) mountOptions() []string {
	opts := []string{"-o", fmt.Sprintf("fsname=%s", m.config.FSName)}
	switch runtime.GOOS {
	case "darwin":
		opts = append(opts, "-o", "volname="+m.config.FSName)
	case "windows":
		opts = append(opts, "-o", "FileSystemName="+m.config.FSName)
	}
	if m.config.AllowOther {
		opts = append(opts, "-o", "allow_other")
	}
	if m.config.Debug {
		opts = append(opts, "-d")
	}
	if m.config.AttrTimeout > 0 {
		opts = append(opts, "-o", fmt.Sprintf("attr_timeout=%g", m.config.AttrTimeout.Seconds()))
	}
	if m.config.EntryTimeout > 0 {
		opts = append(opts, "-o", fmt.Sprintf("entry_timeout=%g", m.config.EntryTimeout.Seconds()))
	}
	return opts
}
