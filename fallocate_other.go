//go:build !linux && !darwin

package phtable

import "os"

// fallocateFile sets the file length. Disk blocks may not be reserved.
func fallocateFile(file *os.File, size int64) error {
	return file.Truncate(size)
}
