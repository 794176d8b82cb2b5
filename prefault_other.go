//go:build !linux

package phtable

// prefaultRegion is a no-op without MADV_POPULATE_WRITE.
func prefaultRegion(data []byte) {}
