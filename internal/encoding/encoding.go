// Package encoding provides the byte-level layout of table regions:
// fixed-width displacement values and length-prefixed slot entries.
//
// All multi-byte integers are little-endian.
package encoding

import (
	"encoding/binary"
	"fmt"

	pherrors "github.com/tamirms/phtable/errors"
)

// DisplacementWidth returns the narrowest width (1, 2 or 4 bytes) that holds
// maxDisplacement.
func DisplacementWidth(maxDisplacement uint32) int {
	switch {
	case maxDisplacement <= 0xFF:
		return 1
	case maxDisplacement <= 0xFFFF:
		return 2
	default:
		return 4
	}
}

// ValidDisplacementWidth reports whether width is one DisplacementWidth can
// return.
func ValidDisplacementWidth(width int) bool {
	return width == 1 || width == 2 || width == 4
}

// PutDisplacement writes d as entry i of a width-byte array.
// Precondition: len(dst) >= (i+1)*width and d fits in width bytes.
func PutDisplacement(dst []byte, i, width int, d uint32) {
	switch width {
	case 1:
		dst[i] = uint8(d)
	case 2:
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(d))
	case 4:
		binary.LittleEndian.PutUint32(dst[i*4:], d)
	default:
		panic("encoding: PutDisplacement: unsupported width")
	}
}

// Displacement reads entry i of a width-byte array.
// Precondition: len(src) >= (i+1)*width.
func Displacement(src []byte, i, width int) uint32 {
	switch width {
	case 1:
		return uint32(src[i])
	case 2:
		return uint32(binary.LittleEndian.Uint16(src[i*2:]))
	default:
		return binary.LittleEndian.Uint32(src[i*4:])
	}
}

// EntrySize returns the encoded size of a (key, value) entry:
// uvarint(len(key)) followed by key and value bytes. It is always >= 1, so a
// zero-length range can mark an empty slot.
func EntrySize(key, value []byte) int {
	return uvarintLen(uint64(len(key))) + len(key) + len(value)
}

// PutEntry encodes (key, value) into dst and returns the bytes written.
// Precondition: len(dst) >= EntrySize(key, value).
func PutEntry(dst []byte, key, value []byte) int {
	n := binary.PutUvarint(dst, uint64(len(key)))
	n += copy(dst[n:], key)
	n += copy(dst[n:], value)
	return n
}

// DecodeEntry splits an encoded entry into key and value. The returned
// slices alias src.
func DecodeEntry(src []byte) (key, value []byte, err error) {
	keyLen, n := binary.Uvarint(src)
	if n <= 0 {
		return nil, nil, fmt.Errorf("%w: bad entry key length", pherrors.ErrCorruptedIndex)
	}
	if keyLen > uint64(len(src)-n) {
		return nil, nil, fmt.Errorf("%w: entry key length %d exceeds entry size %d",
			pherrors.ErrCorruptedIndex, keyLen, len(src))
	}
	end := n + int(keyLen)
	return src[n:end:end], src[end:], nil
}

// uvarintLen returns the number of bytes binary.PutUvarint writes for v.
func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
