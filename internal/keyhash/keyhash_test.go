package keyhash

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

var allHashers = []struct {
	name string
	h    Hasher
}{
	{"xxh3", XXH3{}},
	{"siphash", SipHash{}},
	{"murmur3", Murmur3{}},
}

func TestHashDeterministic(t *testing.T) {
	for _, tc := range allHashers {
		t.Run(tc.name, func(t *testing.T) {
			rng := newTestRNG(t)
			for i := range 200 {
				key := []byte(fmt.Sprintf("key-%d-%d", i, rng.Uint64()))
				seed := rng.Uint64()
				require.Equal(t, tc.h.Hash(seed, key), tc.h.Hash(seed, key))
			}
		})
	}
}

func TestHashDependsOnSeed(t *testing.T) {
	key := []byte("the same key")
	for _, tc := range allHashers {
		t.Run(tc.name, func(t *testing.T) {
			a := tc.h.Hash(1, key)
			b := tc.h.Hash(2, key)
			require.NotEqual(t, a, b)
		})
	}
}

func TestHashEmptyKey(t *testing.T) {
	// Empty keys are valid members of a key set.
	for _, tc := range allHashers {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.h.Hash(7, nil), tc.h.Hash(7, []byte{}))
		})
	}
}

// TestHashHalvesUncorrelated checks that G and F are not the same function
// of the key: over many keys the low bits of G and F agree about half the time.
func TestHashHalvesUncorrelated(t *testing.T) {
	const n = 4096
	for _, tc := range allHashers {
		t.Run(tc.name, func(t *testing.T) {
			agree := 0
			for i := range n {
				var key [8]byte
				binary.LittleEndian.PutUint64(key[:], uint64(i))
				p := tc.h.Hash(testSeed1, key[:])
				if p.G&1 == p.F&1 {
					agree++
				}
			}
			require.InDelta(t, n/2, agree, n/8)
		})
	}
}

func TestNextSeedSequence(t *testing.T) {
	seen := make(map[uint64]bool)
	seed := uint64(0)
	for range 1000 {
		seed = NextSeed(seed)
		require.False(t, seen[seed], "seed %#x repeated", seed)
		seen[seed] = true
	}
	// Same start, same sequence.
	require.Equal(t, NextSeed(NextSeed(42)), NextSeed(NextSeed(42)))
}

func TestFoldSeed32(t *testing.T) {
	require.Equal(t, uint32(0), FoldSeed32(0))
	require.Equal(t, uint32(0xFFFFFFFF), FoldSeed32(0x00000000FFFFFFFF))
	require.Equal(t, uint32(0), FoldSeed32(0xABCD1234ABCD1234))
}
