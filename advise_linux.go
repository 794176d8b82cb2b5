//go:build linux

package phtable

import "golang.org/x/sys/unix"

// adviseRandom tells the kernel that lookups touch the mapping at random,
// disabling readahead on page faults. Best-effort: errors are ignored.
func adviseRandom(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Madvise(data, unix.MADV_RANDOM)
}
