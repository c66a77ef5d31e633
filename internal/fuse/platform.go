//go:build !cgofuse

package fuse

import (
	"github.com/sirupsen/logrus"

	"github.com/routefs/routefs/internal/config"
)

// CreatePlatformMountManager returns the go-fuse mount manager
func CreatePlatformMountManager(fsys Mountable, cfg config.MountConfig, logger *logrus.Entry) PlatformFileSystem {
	return NewMountManager(fsys, cfg, logger)
}
