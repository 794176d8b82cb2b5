//go:build !linux

package phtable

// adviseRandom is a no-op on non-Linux platforms.
func adviseRandom(data []byte) {}
