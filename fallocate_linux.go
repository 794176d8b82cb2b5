//go:build linux

package phtable

import (
	"os"

	"golang.org/x/sys/unix"
)

// fallocateFile reserves size bytes for file and sets its length, so writes
// through a mapping cannot SIGBUS on a full disk. Filesystems without
// fallocate support (NFS, some FUSE mounts) fall back to ftruncate.
func fallocateFile(file *os.File, size int64) error {
	fd := int(file.Fd())
	if err := unix.Fallocate(fd, 0, 0, size); err != nil {
		return unix.Ftruncate(fd, size)
	}
	return unix.Ftruncate(fd, size)
}
