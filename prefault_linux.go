//go:build linux

package phtable

import "golang.org/x/sys/unix"

// MADV_POPULATE_WRITE was added in Linux 5.14.
const madvPopulateWrite = 23

// prefaultRegion populates the pages of a writable mapping before the table
// image is copied in, so the copy does not take one fault per page.
// Older kernels return EINVAL, which is ignored along with other errors.
func prefaultRegion(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Madvise(data, madvPopulateWrite)
}
