//go:build cgofuse

package fuse

import (
	"github.com/sirupsen/logrus"

	"github.com/routefs/routefs/internal/config"
)

// CreatePlatformMountManager returns the cgofuse mount manager
func CreatePlatformMountManager(fsys Mountable, cfg config.MountConfig, logger *logrus.Entry) PlatformFileSystem {
	return NewCgoFuseMountManager(fsys, cfg, logger)
}
