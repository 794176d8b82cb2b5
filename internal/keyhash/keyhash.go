// Package keyhash derives the two sub-hashes used by table construction.
//
// Every Hasher splits one 128-bit keyed hash into G (bucket assignment) and
// F (slot probing). The halves of a 128-bit hash are independent, so
// bucketing and probing are not correlated.
package keyhash

import (
	"github.com/dchest/siphash"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// Pair holds the sub-hashes of one key under one seed.
type Pair struct {
	G uint64 // bucket hash: bucket = G mod numBuckets
	F uint64 // slot hash: slot = (F mod numSlots + d) mod numSlots
}

// Hasher computes the sub-hash pair for a key.
// Implementations must be deterministic and safe for concurrent use.
type Hasher interface {
	Hash(seed uint64, key []byte) Pair
}

// XXH3 uses xxHash3-128 with a 64-bit seed.
type XXH3 struct{}

// Hash implements Hasher.
func (XXH3) Hash(seed uint64, key []byte) Pair {
	h := xxh3.Hash128Seed(key, seed)
	return Pair{G: h.Hi, F: h.Lo}
}

// sipDomain is the second SipHash key word. The seed occupies the first, so
// seeds map to distinct SipHash keys.
const sipDomain = 0x7068_7461_626c_6531 // "phtable1"

// SipHash uses SipHash-2-4 with 128-bit output, keyed by (seed, sipDomain).
type SipHash struct{}

// Hash implements Hasher.
func (SipHash) Hash(seed uint64, key []byte) Pair {
	lo, hi := siphash.Hash128(seed, sipDomain, key)
	return Pair{G: hi, F: lo}
}

// Murmur3 uses MurmurHash3 x64 128-bit. Murmur3 takes a 32-bit seed, so the
// 64-bit seed is folded; seeds differing only by the fold collide.
type Murmur3 struct{}

// Hash implements Hasher.
func (Murmur3) Hash(seed uint64, key []byte) Pair {
	h1, h2 := murmur3.Sum128WithSeed(key, FoldSeed32(seed))
	return Pair{G: h1, F: h2}
}

// FoldSeed32 folds a 64-bit seed into 32 bits by XOR of its halves.
func FoldSeed32(seed uint64) uint32 {
	return uint32(seed) ^ uint32(seed>>32)
}

// NextSeed returns the seed for the next construction attempt.
// It applies the SplitMix64 mixer, so a seed sequence is fully determined by
// its first element.
func NextSeed(seed uint64) uint64 {
	seed += 0x9e3779b97f4a7c15
	z := seed
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
