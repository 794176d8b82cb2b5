package phtable

import (
	"fmt"

	pherrors "github.com/tamirms/phtable/errors"
	"github.com/tamirms/phtable/internal/keyhash"
)

// HashAlgorithm selects the keyed hash used to derive bucket and slot
// hashes. It is stored in the table header so readers pick the same hasher.
type HashAlgorithm uint16

const (
	// HashXXH3 uses xxHash3-128 (default).
	HashXXH3 HashAlgorithm = 0
	// HashSipHash uses SipHash-2-4 with 128-bit output.
	HashSipHash HashAlgorithm = 1
	// HashMurmur3 uses MurmurHash3 x64 128-bit.
	HashMurmur3 HashAlgorithm = 2
)

// String returns the algorithm name.
func (a HashAlgorithm) String() string {
	switch a {
	case HashXXH3:
		return "xxh3"
	case HashSipHash:
		return "siphash"
	case HashMurmur3:
		return "murmur3"
	default:
		return fmt.Sprintf("HashAlgorithm(%d)", uint16(a))
	}
}

// ParseHashAlgorithm returns the algorithm with the given name.
func ParseHashAlgorithm(name string) (HashAlgorithm, error) {
	switch name {
	case "xxh3":
		return HashXXH3, nil
	case "siphash":
		return HashSipHash, nil
	case "murmur3":
		return HashMurmur3, nil
	default:
		return 0, fmt.Errorf("%w: unknown hash algorithm %q", pherrors.ErrInvalidConfig, name)
	}
}

// newKeyHasher creates the hasher for the given algorithm.
func newKeyHasher(a HashAlgorithm) (keyhash.Hasher, error) {
	switch a {
	case HashXXH3:
		return keyhash.XXH3{}, nil
	case HashSipHash:
		return keyhash.SipHash{}, nil
	case HashMurmur3:
		return keyhash.Murmur3{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown hash algorithm %d", pherrors.ErrCorruptedIndex, a)
	}
}
