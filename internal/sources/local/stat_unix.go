//go:build unix

package local

import (
	"io/fs"
	"syscall"

	"github.com/routefs/routefs/pkg/types"
)

func attrFromInfo(info fs.FileInfo) *types.Attr {
	attr := &types.Attr{
		Mode:  posixMode(info.Mode()),
		Nlink: 1,
		UID:   types.UnsetID,
		GID:   types.UnsetID,
		Size:  info.Size(),
		Atime: info.ModTime(),
		Mtime: info.ModTime(),
		Ctime: info.ModTime(),
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		attr.Nlink = uint32(st.Nlink)
		attr.UID = st.Uid
		attr.GID = st.Gid
	}
	return attr
}
