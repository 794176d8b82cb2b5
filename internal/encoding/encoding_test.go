package encoding

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	pherrors "github.com/tamirms/phtable/errors"
)

func TestDisplacementWidth(t *testing.T) {
	tests := []struct {
		max  uint32
		want int
	}{
		{0, 1},
		{255, 1},
		{256, 2},
		{65535, 2},
		{65536, 4},
		{math.MaxUint32, 4},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, DisplacementWidth(tc.max), "DisplacementWidth(%d)", tc.max)
		require.True(t, ValidDisplacementWidth(tc.want))
	}
	require.False(t, ValidDisplacementWidth(3))
	require.False(t, ValidDisplacementWidth(0))
}

func TestDisplacementArray(t *testing.T) {
	values := []uint32{0, 1, 200, 255}
	for _, width := range []int{1, 2, 4} {
		buf := make([]byte, len(values)*width)
		for i, v := range values {
			PutDisplacement(buf, i, width, v)
		}
		for i, v := range values {
			require.Equal(t, v, Displacement(buf, i, width), "width=%d i=%d", width, i)
		}
	}

	// Neighbouring entries must not overlap at the widest sizes.
	buf := make([]byte, 8)
	PutDisplacement(buf, 0, 4, 0xAABBCCDD)
	PutDisplacement(buf, 1, 4, 0x11223344)
	require.Equal(t, uint32(0xAABBCCDD), Displacement(buf, 0, 4))
	require.Equal(t, uint32(0x11223344), Displacement(buf, 1, 4))
	require.Equal(t, uint32(0xCCDD), Displacement(buf, 0, 2))
}

func TestPutDisplacementBadWidthPanics(t *testing.T) {
	require.Panics(t, func() { PutDisplacement(make([]byte, 8), 0, 3, 1) })
}

func TestEntryEncoding(t *testing.T) {
	tests := []struct {
		name       string
		key, value []byte
	}{
		{"key_and_value", []byte("alpha"), []byte("one")},
		{"empty_value", []byte("beta"), nil},
		{"empty_key", nil, []byte("v")},
		{"both_empty", nil, nil},
		{"long_key", bytes.Repeat([]byte("k"), 300), []byte("x")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			size := EntrySize(tc.key, tc.value)
			require.GreaterOrEqual(t, size, 1)

			buf := make([]byte, size)
			require.Equal(t, size, PutEntry(buf, tc.key, tc.value))

			key, value, err := DecodeEntry(buf)
			require.NoError(t, err)
			require.Equal(t, len(tc.key), len(key))
			require.True(t, bytes.Equal(tc.key, key))
			require.True(t, bytes.Equal(tc.value, value))
		})
	}
}

func TestDecodeEntryCorrupted(t *testing.T) {
	// Key length claims more bytes than the entry holds.
	buf := binary.AppendUvarint(nil, 10)
	buf = append(buf, "abc"...)
	_, _, err := DecodeEntry(buf)
	require.ErrorIs(t, err, pherrors.ErrCorruptedIndex)

	// Empty or unterminated varint.
	_, _, err = DecodeEntry(nil)
	require.ErrorIs(t, err, pherrors.ErrCorruptedIndex)
	_, _, err = DecodeEntry([]byte{0x80, 0x80})
	require.ErrorIs(t, err, pherrors.ErrCorruptedIndex)
}

func TestUvarintLenMatchesPutUvarint(t *testing.T) {
	var buf [binary.MaxVarintLen64]byte
	for _, v := range []uint64{0, 1, 127, 128, 16383, 16384, 1 << 35, math.MaxUint64} {
		require.Equal(t, binary.PutUvarint(buf[:], v), uvarintLen(v), "v=%d", v)
	}
}
