package displace

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	pherrors "github.com/tamirms/phtable/errors"
	"github.com/tamirms/phtable/internal/keyhash"
)

// verifyInjective checks that every key lands in a distinct slot given by the
// slot formula, and that Owner agrees with it.
func verifyInjective(t *testing.T, plan *Plan, solver *Solver, pairs []keyhash.Pair) {
	t.Helper()
	numSlots := uint32(solver.NumSlots())
	disp := solver.Displacements()
	used := make(map[uint32]int, len(pairs))
	for k, p := range pairs {
		b := Bucket(p.G, uint32(plan.NumBuckets()))
		d := disp[b]
		require.Less(t, d, numSlots, "displacement out of range for bucket %d", b)
		slot := Slot(p.F, d, numSlots)
		if other, dup := used[slot]; dup {
			t.Fatalf("keys %d and %d collide at slot %d", other, k, slot)
		}
		used[slot] = k
		owner, ok := solver.Owner(int(slot))
		require.True(t, ok)
		require.Equal(t, k, owner)
	}
	occupied := 0
	for slot := range solver.NumSlots() {
		if _, ok := solver.Owner(slot); ok {
			occupied++
		}
	}
	require.Equal(t, len(pairs), occupied)
}

func TestSolverBasic(t *testing.T) {
	rng := newTestRNG(t)
	plan, solver, pairs := solveWithRetry(t, rng, 10, 10, 10, 50)
	verifyInjective(t, plan, solver, pairs)
}

func TestSolverVariousGeometries(t *testing.T) {
	tests := []struct {
		n      int
		lambda float64
		alpha  float64
	}{
		{1, 1.0, 1.0},
		{2, 1.0, 1.0},
		{100, 1.0, 1.0},
		{1000, 1.5, 0.8},
		{5000, 2.0, 0.8},
		{5000, 1.5, 0.5},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("n=%d/lambda=%v/alpha=%v", tc.n, tc.lambda, tc.alpha), func(t *testing.T) {
			rng := newTestRNG(t)
			m, err := NumBuckets(tc.n, tc.lambda)
			require.NoError(t, err)
			s, err := NumSlots(tc.n, tc.alpha)
			require.NoError(t, err)
			plan, solver, pairs := solveWithRetry(t, rng, tc.n, m, s, 200)
			verifyInjective(t, plan, solver, pairs)
		})
	}
}

// TestSolverIntraBucketCollision: two keys with identical (G, F) can never
// be separated by a shared displacement.
func TestSolverIntraBucketCollision(t *testing.T) {
	pairs := []keyhash.Pair{{G: 4, F: 9}, {G: 2, F: 3}, {G: 4, F: 9}}
	plan := NewPlan(3, 3)
	require.NoError(t, plan.Assign(pairs))
	solver, err := NewSolver(3, 3, 4, 0)
	require.NoError(t, err)

	err = solver.Solve(plan, pairs)
	require.ErrorIs(t, err, ErrExhausted)
	var f *Failure
	require.True(t, errors.As(err, &f))
	require.Equal(t, 1, f.Bucket) // 4 mod 3
	require.Equal(t, 2, f.Size)
	require.Equal(t, 0, f.Placed)
}

// TestSolverSameResidueCollision: distinct F values with equal F mod s
// collide just the same.
func TestSolverSameResidueCollision(t *testing.T) {
	pairs := []keyhash.Pair{{G: 0, F: 1}, {G: 0, F: 6}}
	plan := NewPlan(2, 1)
	require.NoError(t, plan.Assign(pairs))
	solver, err := NewSolver(2, 1, 5, 0)
	require.NoError(t, err)
	require.ErrorIs(t, solver.Solve(plan, pairs), ErrExhausted)
}

// TestSolverMaxDisplacementBound: two single-key buckets wanting slot 0.
// With one candidate the second bucket fails; with the default bound it
// moves to slot 1.
func TestSolverMaxDisplacementBound(t *testing.T) {
	pairs := []keyhash.Pair{{G: 0, F: 0}, {G: 1, F: 0}}
	plan := NewPlan(2, 2)
	require.NoError(t, plan.Assign(pairs))

	tight, err := NewSolver(2, 2, 2, 1)
	require.NoError(t, err)
	err = tight.Solve(plan, pairs)
	var f *Failure
	require.True(t, errors.As(err, &f))
	require.Equal(t, 1, f.Bucket)
	require.Equal(t, 1, f.Placed)
	require.Equal(t, 1, f.Candidates)

	loose, err := NewSolver(2, 2, 2, 0)
	require.NoError(t, err)
	require.NoError(t, loose.Solve(plan, pairs))
	require.Equal(t, []uint32{0, 1}, loose.Displacements())
	require.Equal(t, uint32(1), loose.MaxDisplacement())
	verifyInjective(t, plan, loose, pairs)
}

// TestSolverWrapAround: displacement search wraps past the last slot.
func TestSolverWrapAround(t *testing.T) {
	// Bucket 0 (two keys) takes slots 3 and 0; bucket 1 starts at 3 and
	// wraps to slot 1.
	pairs := []keyhash.Pair{{G: 0, F: 3}, {G: 0, F: 4}, {G: 1, F: 3}}
	plan := NewPlan(3, 2)
	require.NoError(t, plan.Assign(pairs))
	solver, err := NewSolver(3, 2, 4, 0)
	require.NoError(t, err)
	require.NoError(t, solver.Solve(plan, pairs))
	require.Equal(t, []uint32{0, 2}, solver.Displacements())
	verifyInjective(t, plan, solver, pairs)
}

// TestSolverReuseAcrossAttempts: a failed attempt leaves claimed slots
// behind; the next Solve must not see them.
func TestSolverReuseAcrossAttempts(t *testing.T) {
	plan := NewPlan(4, 3)
	solver, err := NewSolver(4, 3, 4, 0)
	require.NoError(t, err)

	// Bucket 1 claims slots 1 and 2, then bucket 2 fails (0 and 4 share a
	// residue mod 4).
	bad := []keyhash.Pair{{G: 1, F: 1}, {G: 1, F: 2}, {G: 2, F: 0}, {G: 2, F: 4}}
	require.NoError(t, plan.Assign(bad))
	err = solver.Solve(plan, bad)
	var f *Failure
	require.True(t, errors.As(err, &f))
	require.Equal(t, 2, f.Bucket)
	require.Equal(t, 2, f.Placed)

	// Had slots 1 and 2 stayed claimed, bucket 0 would need d=2.
	good := []keyhash.Pair{{G: 0, F: 1}, {G: 1, F: 1}, {G: 2, F: 1}}
	require.NoError(t, plan.Assign(good))
	require.NoError(t, solver.Solve(plan, good))
	require.Equal(t, []uint32{0, 1, 2}, solver.Displacements())
	verifyInjective(t, plan, solver, good)
}

func TestSolverDeterministic(t *testing.T) {
	rng := newTestRNG(t)
	const n = 2000
	m, err := NumBuckets(n, 1.5)
	require.NoError(t, err)
	s, err := NumSlots(n, 0.8)
	require.NoError(t, err)

	var pairs []keyhash.Pair
	var first []uint32
	plan := NewPlan(n, m)
	solver, err := NewSolver(n, m, s, 0)
	require.NoError(t, err)
	for range 200 {
		pairs = randomPairs(rng, n)
		require.NoError(t, plan.Assign(pairs))
		if solver.Solve(plan, pairs) == nil {
			first = append([]uint32(nil), solver.Displacements()...)
			break
		}
	}
	require.NotNil(t, first)

	again, err := NewSolver(n, m, s, 0)
	require.NoError(t, err)
	require.NoError(t, again.Solve(plan, pairs))
	require.Equal(t, first, again.Displacements())
}

func TestSolverEmpty(t *testing.T) {
	plan := NewPlan(0, 0)
	require.NoError(t, plan.Assign(nil))
	solver, err := NewSolver(0, 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, solver.Solve(plan, nil))
	require.Empty(t, solver.Displacements())
	require.Zero(t, solver.NumSlots())
}

func TestNewSolverCapacity(t *testing.T) {
	_, err := NewSolver(10, 5, 9, 0)
	require.ErrorIs(t, err, pherrors.ErrCapacityOverflow)

	_, err = NewSolver(10, 5, MaxSlots+1, 0)
	require.ErrorIs(t, err, pherrors.ErrCapacityOverflow)
}

func TestSolverPlanMismatch(t *testing.T) {
	plan := NewPlan(4, 4)
	pairs := []keyhash.Pair{{G: 1, F: 1}}
	require.NoError(t, plan.Assign(pairs))
	solver, err := NewSolver(4, 3, 4, 0)
	require.NoError(t, err)
	require.ErrorIs(t, solver.Solve(plan, pairs), pherrors.ErrCapacityOverflow)
}
