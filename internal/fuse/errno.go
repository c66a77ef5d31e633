package fuse

import (
	"syscall"

	"github.com/routefs/routefs/pkg/errors"
)

// Errno maps a filesystem error to the errno reported to the kernel
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch errors.CodeOf(err) {
	case errors.ErrCodeFileNotFound, errors.ErrCodePathInvalid:
		return syscall.ENOENT
	case errors.ErrCodePermissionDenied:
		return syscall.EACCES
	case errors.ErrCodeNotSupported:
		return syscall.EPERM
	case errors.ErrCodeInvalidHandle:
		return syscall.EBADF
	default:
		return syscall.EIO
	}
}
