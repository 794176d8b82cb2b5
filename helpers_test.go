package phtable

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"github.com/tamirms/phtable/internal/keyhash"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

// newTestRNG returns a PCG generator seeded from the test name, so every
// test draws its own reproducible stream.
func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

// testKeys derives n distinct keys of 8 to 32 bytes from SHA3-256 over
// (domain, index). Different domains give disjoint key sets.
func testKeys(domain string, n int) [][]byte {
	keys := make([][]byte, n)
	var buf [8]byte
	for i := range keys {
		binary.LittleEndian.PutUint64(buf[:], uint64(i))
		sum := sha3.Sum256(append([]byte(domain), buf[:]...))
		keys[i] = sum[:8+i%25]
	}
	return keys
}

// testEntries pairs testKeys with "value-<i>" values.
func testEntries(domain string, n int) []Entry {
	keys := testKeys(domain, n)
	entries := make([]Entry, n)
	for i, k := range keys {
		entries[i] = Entry{Key: k, Value: fmt.Appendf(nil, "value-%d", i)}
	}
	return entries
}

// randomEntries returns n entries with random keys of 16 bytes and random
// values of 0 to 15 bytes.
func randomEntries(rng *rand.Rand, n int) []Entry {
	seen := make(map[string]bool, n)
	entries := make([]Entry, 0, n)
	for len(entries) < n {
		key := make([]byte, 16)
		for i := 0; i < len(key); i += 8 {
			binary.LittleEndian.PutUint64(key[i:], rng.Uint64())
		}
		if seen[string(key)] {
			continue
		}
		seen[string(key)] = true
		value := make([]byte, rng.IntN(16))
		for i := range value {
			value[i] = byte(rng.Uint32())
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	return entries
}

func buildTestTable(t testing.TB, entries []Entry, opts ...BuildOption) *Table {
	t.Helper()
	tbl, err := Build(entries, opts...)
	require.NoError(t, err)
	return tbl
}

// requireEntries checks that every entry looks up its own value and that
// member slots are distinct.
func requireEntries(t testing.TB, tbl *Table, entries []Entry) {
	t.Helper()
	require.Equal(t, len(entries), tbl.Len())
	slots := make(map[int][]byte, len(entries))
	for _, e := range entries {
		v, ok := tbl.Get(e.Key)
		require.True(t, ok, "key %x not found", e.Key)
		require.Equal(t, string(e.Value), string(v), "key %x", e.Key)

		slot, ok := tbl.Index(e.Key)
		require.True(t, ok)
		require.GreaterOrEqual(t, slot, 0)
		require.Less(t, slot, tbl.NumSlots())
		prev, dup := slots[slot]
		require.False(t, dup, "keys %x and %x share slot %d", prev, e.Key, slot)
		slots[slot] = e.Key
	}
}

// withHasher overrides the key hasher; the header still records the
// configured HashAlgorithm.
func withHasher(h keyhash.Hasher) BuildOption {
	return func(c *buildConfig) {
		c.hasher = h
	}
}

// constHasher maps every key to the same pair under every seed.
type constHasher struct{}

func (constHasher) Hash(uint64, []byte) keyhash.Pair {
	return keyhash.Pair{G: 7, F: 3}
}

// mapHasher returns a fixed pair per key, ignoring the seed.
type mapHasher map[string]keyhash.Pair

func (m mapHasher) Hash(_ uint64, key []byte) keyhash.Pair {
	return m[string(key)]
}
