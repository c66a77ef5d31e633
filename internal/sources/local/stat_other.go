//go:build !unix

package local

import (
	"io/fs"

	"github.com/routefs/routefs/pkg/types"
)

func attrFromInfo(info fs.FileInfo) *types.Attr {
	return &types.Attr{
		Mode:  posixMode(info.Mode()),
		Nlink: 1,
		UID:   types.UnsetID,
		GID:   types.UnsetID,
		Size:  info.Size(),
		Atime: info.ModTime(),
		Mtime: info.ModTime(),
		Ctime: info.ModTime(),
	}
}
