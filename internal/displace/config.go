// Package displace implements the hash-and-displace construction core:
// bucket planning, per-bucket displacement search and the slot formula
// shared by construction and lookup.
//
// A key with sub-hashes (G, F) lands in bucket G mod m and, once its
// bucket's displacement d is known, in slot (F mod s + d) mod s.
package displace

import (
	"fmt"
	"math"

	pherrors "github.com/tamirms/phtable/errors"
)

// Geometry defaults. Callers override them through build options; these are
// the values used when nothing is configured.
const (
	// DefaultLoadFactor is the average number of keys per bucket (lambda).
	DefaultLoadFactor = 1.5

	// DefaultSlotLoad is the fraction of slots occupied (alpha):
	// numSlots = ceil(numKeys / alpha).
	DefaultSlotLoad = 0.8

	// MaxSlots bounds the slot array so slot indices and displacements fit
	// in uint32 with room for the uint64 arithmetic in Slot.
	MaxSlots = 1 << 31

	// MaxBuckets bounds the bucket count; bucket indices are stored as
	// uint32 and bucket storage is allocated up front.
	MaxBuckets = 1 << 31
)

// NumBuckets returns ceil(numKeys / loadFactor), at least 1 for a non-empty
// key set and 0 for an empty one.
//
// Returns ErrCapacityOverflow if the count is not finite or exceeds
// MaxBuckets.
func NumBuckets(numKeys int, loadFactor float64) (int, error) {
	if numKeys == 0 {
		return 0, nil
	}
	m := math.Ceil(float64(numKeys) / loadFactor)
	if !(m <= MaxBuckets) {
		return 0, fmt.Errorf("%w: %d keys at load factor %v need more than %d buckets",
			pherrors.ErrCapacityOverflow, numKeys, loadFactor, MaxBuckets)
	}
	return max(int(m), 1), nil
}

// NumSlots returns ceil(numKeys / slotLoad), but always at least numKeys.
//
// Returns ErrCapacityOverflow if the count is not finite or exceeds
// MaxSlots.
func NumSlots(numKeys int, slotLoad float64) (int, error) {
	if numKeys == 0 {
		return 0, nil
	}
	s := math.Ceil(float64(numKeys) / slotLoad)
	if !(s <= MaxSlots) || numKeys > MaxSlots {
		return 0, fmt.Errorf("%w: %d keys at slot load %v need more than %d slots",
			pherrors.ErrCapacityOverflow, numKeys, slotLoad, MaxSlots)
	}
	return max(int(s), numKeys), nil
}

// Bucket maps a bucket hash to its bucket index. numBuckets must be > 0.
func Bucket(g uint64, numBuckets uint32) uint32 {
	return uint32(g % uint64(numBuckets))
}

// Slot computes (f + d) mod numSlots without overflowing f + d.
// numSlots must be > 0. Any d is accepted, so a corrupted displacement
// still yields an in-range slot.
func Slot(f uint64, d uint32, numSlots uint32) uint32 {
	s := uint64(numSlots)
	return uint32((f%s + uint64(d)) % s)
}
