/*
Package fuse connects a routefs filesystem to the kernel.

Two bindings translate kernel requests into calls on filesystem.Operations:

  - go-fuse (default build): Root returns a path node that serves lookups,
    attributes, listings, symlinks and opens. Open sessions are Handle
    values carrying the filesystem's handle id. MountManager mounts it.
  - cgofuse (build tag cgofuse): CgoFuseFS implements cgofuse's path-based
    interface for macOS and Windows hosts. CgoFuseMountManager mounts it.

CreatePlatformMountManager picks the manager for the current build.

Every error is reported to the kernel through Errno:

	FILE_NOT_FOUND, PATH_INVALID   ENOENT
	PERMISSION_DENIED              EACCES
	NOT_SUPPORTED                  EPERM
	INVALID_HANDLE                 EBADF
	anything else                  EIO

Opens are served with direct I/O since handlers rarely know a file's size in
advance. Ownership a handler leaves unset is reported as the calling
process's uid and gid.

Building with cgofuse:

	go build -tags cgofuse ./cmd/routefs
*/
package fuse
