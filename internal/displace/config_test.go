package displace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	pherrors "github.com/tamirms/phtable/errors"
)

func TestNumBuckets(t *testing.T) {
	tests := []struct {
		keys   int
		lambda float64
		want   int
	}{
		{0, 1.0, 0},
		{1, 1.0, 1},
		{3, 1.0, 3},
		{10, 1.5, 7},
		{10000, 1.5, 6667},
		{1, 5.0, 1},
	}
	for _, tc := range tests {
		m, err := NumBuckets(tc.keys, tc.lambda)
		require.NoError(t, err)
		require.Equal(t, tc.want, m, "NumBuckets(%d, %v)", tc.keys, tc.lambda)
	}
}

func TestNumBucketsOverflow(t *testing.T) {
	for _, lambda := range []float64{1e-12, 1e-320, 0, math.NaN()} {
		_, err := NumBuckets(10, lambda)
		require.ErrorIs(t, err, pherrors.ErrCapacityOverflow, "lambda=%v", lambda)
	}
	m, err := NumBuckets(MaxBuckets, 1.0)
	require.NoError(t, err)
	require.Equal(t, MaxBuckets, m)
	_, err = NumBuckets(MaxBuckets+1, 1.0)
	require.ErrorIs(t, err, pherrors.ErrCapacityOverflow)
}

func TestNumSlots(t *testing.T) {
	tests := []struct {
		keys  int
		alpha float64
		want  int
	}{
		{0, 0.8, 0},
		{3, 1.0, 3},
		{3, 0.8, 4},
		{100, 0.99, 102},
		{10000, 0.5, 20000},
	}
	for _, tc := range tests {
		s, err := NumSlots(tc.keys, tc.alpha)
		require.NoError(t, err)
		require.Equal(t, tc.want, s, "NumSlots(%d, %v)", tc.keys, tc.alpha)
	}
}

func TestNumSlotsOverflow(t *testing.T) {
	for _, alpha := range []float64{1e-12, 1e-320, 0, math.NaN()} {
		_, err := NumSlots(10, alpha)
		require.ErrorIs(t, err, pherrors.ErrCapacityOverflow, "alpha=%v", alpha)
	}
	_, err := NumSlots(MaxSlots+1, 1.0)
	require.ErrorIs(t, err, pherrors.ErrCapacityOverflow)
}

func TestSlotMatchesModularSum(t *testing.T) {
	rng := newTestRNG(t)
	for range 10000 {
		f := rng.Uint64N(1 << 40)
		s := rng.Uint32N(1<<20) + 1
		d := rng.Uint32N(s)
		want := uint32((f + uint64(d)) % uint64(s))
		require.Equal(t, want, Slot(f, d, s))
	}
}

func TestSlotNoOverflow(t *testing.T) {
	// f + d would wrap in uint64; the result must still be (f + d) mod s.
	const s = 1000
	got := Slot(math.MaxUint64, s-1, s)
	want := uint32((math.MaxUint64%s + (s - 1)) % s)
	require.Equal(t, want, got)
	require.Less(t, Slot(math.MaxUint64, math.MaxUint32, s), uint32(s))
}

func TestBucketInRange(t *testing.T) {
	rng := newTestRNG(t)
	for range 10000 {
		m := rng.Uint32N(5000) + 1
		require.Less(t, Bucket(rng.Uint64(), m), m)
	}
}
