package displace

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"
	"testing"

	"github.com/tamirms/phtable/internal/keyhash"
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

func randomPairs(rng *rand.Rand, n int) []keyhash.Pair {
	pairs := make([]keyhash.Pair, n)
	for i := range pairs {
		pairs[i] = keyhash.Pair{G: rng.Uint64(), F: rng.Uint64()}
	}
	return pairs
}

// solveWithRetry redraws the pairs (a new seed, in effect) until an attempt
// succeeds.
func solveWithRetry(t *testing.T, rng *rand.Rand, n, m, s, maxAttempts int) (*Plan, *Solver, []keyhash.Pair) {
	t.Helper()
	plan := NewPlan(n, m)
	solver, err := NewSolver(n, m, s, 0)
	if err != nil {
		t.Fatalf("NewSolver: %v", err)
	}
	for range maxAttempts {
		pairs := randomPairs(rng, n)
		if err := plan.Assign(pairs); err != nil {
			t.Fatalf("Assign: %v", err)
		}
		if err := solver.Solve(plan, pairs); err == nil {
			return plan, solver, pairs
		}
	}
	t.Fatalf("solver failed after %d attempts", maxAttempts)
	return nil, nil, nil
}
