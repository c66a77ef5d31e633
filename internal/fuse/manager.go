package fuse

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/routefs/routefs/internal/filesystem"
	"github.com/routefs/routefs/pkg/errors"
)

const mountsFile = "/proc/mounts"

// Mountable is the filesystem a mount manager serves
type Mountable interface {
	filesystem.Operations
	OpenHandles() int
	Close() error
}

// PlatformFileSystem is implemented by the mount manager of each binding
type PlatformFileSystem interface {
	Mount(ctx context.Context) error
	Unmount() error
	IsMounted() bool
	Wait()
	GetStats() *FilesystemStats
}

// FilesystemStats describes a mount
type FilesystemStats struct {
	MountPoint  string        `json:"mount_point"`
	Mounted     bool          `json:"mounted"`
	MountedAt   time.Time     `json:"mounted_at,omitempty"`
	Uptime      time.Duration `json:"uptime"`
	OpenHandles int           `json:"open_handles"`
}

func validateMountPoint(mountPoint, mounts string, logger *logrus.Entry) error {
	fail := func(msg string, cause error) error {
		var err *errors.RouteFSError
		if cause != nil {
			err = errors.Wrap(cause, errors.ErrCodeMountFailed, msg)
		} else {
			err = errors.NewError(errors.ErrCodeMountFailed, msg)
		}
		return err.WithComponent("fuse").WithContext("mount_point", mountPoint)
	}

	if mountPoint == "" {
		return fail("mount point cannot be empty", nil)
	}

	info, err := os.Stat(mountPoint)
	if err != nil {
		if os.IsNotExist(err) {
			return fail("mount point does not exist", err)
		}
		return fail("cannot access mount point", err)
	}
	if !info.IsDir() {
		return fail("mount point is not a directory", nil)
	}

	entries, err := os.ReadDir(mountPoint)
	if err != nil {
		return fail("cannot read mount point directory", err)
	}
	if len(entries) > 0 {
		logger.Warn("Mount point is not empty")
	}

	if isMountedIn(mounts, mountPoint) {
		return fail("mount point is already mounted", nil)
	}
	return nil
}

// isMountedIn reports whether mountPoint appears as a mount target in the
// fstab-formatted file mounts. An unreadable file counts as not mounted.
func isMountedIn(mounts, mountPoint string) bool {
	f, err := os.Open(mounts)
	if err != nil {
		return false
	}
	defer f.Close()

	target := filepath.Clean(mountPoint)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 1 && fields[1] == target {
			return true
		}
	}
	return false
}
