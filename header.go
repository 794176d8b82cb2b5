package phtable

import (
	"encoding/binary"

	pherrors "github.com/tamirms/phtable/errors"
	"github.com/tamirms/phtable/internal/encoding"
)

const (
	// magic number for phtable files: "PHTB" in little-endian
	magic = uint32(0x42544850)

	// version is the current format version
	version = uint16(0x0001)

	// headerSize is the exact size of the serialized header (64 bytes)
	headerSize = 64

	// footerSize is the exact size of the serialized footer (32 bytes)
	footerSize = 32

	// slotOffsetSize is the size of one slot offset (uint32_le)
	slotOffsetSize = 4

	// userMetadataLenSize is the size of the user metadata length prefix
	userMetadataLenSize = 4

	// minTableSize is the size of an empty table without user metadata:
	// header + metadata length + one slot offset (the sentinel) + footer.
	minTableSize = headerSize + userMetadataLenSize + slotOffsetSize + footerSize
)

// Header flags
const (
	flagSet = uint8(1 << 0) // built from keys only (no values)
)

// header is the 64-byte table header.
//
// Layout:
//
//	Offset  Size  Field              Type
//	0       4     Magic              0x42544850 ("PHTB")
//	4       2     Version            0x0001
//	6       2     HashAlgorithm      uint16_le (0=xxh3, 1=siphash, 2=murmur3)
//	8       8     Seed               uint64_le (seed of the successful attempt)
//	16      8     NumKeys            uint64_le (n)
//	24      4     NumBuckets         uint32_le (m)
//	28      4     NumSlots           uint32_le (s)
//	32      1     DisplacementWidth  uint8 (1, 2 or 4 bytes)
//	33      1     Flags              uint8 (bit 0: set mode)
//	34      2     Attempts           uint16_le (construction attempts used)
//	36      28    Reserved           [28]byte (zero)
//
// The file body follows the header:
//
//	[UserMetaLen 4B][UserMeta][Displacements m×w][SlotOffsets (s+1)×4B][Entries][Footer 32B]
type header struct {
	Magic             uint32        // 4 bytes: magic number
	Version           uint16        // 2 bytes: format version
	HashAlgorithm     HashAlgorithm // 2 bytes: key hasher
	Seed              uint64        // 8 bytes: hash seed
	NumKeys           uint64        // 8 bytes: number of keys
	NumBuckets        uint32        // 4 bytes: number of buckets
	NumSlots          uint32        // 4 bytes: number of slots
	DisplacementWidth uint8         // 1 byte: bytes per displacement
	Flags             uint8         // 1 byte: flags
	Attempts          uint16        // 2 bytes: attempts used to build
	Reserved          [28]byte      // 28 bytes: reserved (zero)
}

// encodeTo serializes the header to an existing buffer.
func (h *header) encodeTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.HashAlgorithm))
	binary.LittleEndian.PutUint64(buf[8:16], h.Seed)
	binary.LittleEndian.PutUint64(buf[16:24], h.NumKeys)
	binary.LittleEndian.PutUint32(buf[24:28], h.NumBuckets)
	binary.LittleEndian.PutUint32(buf[28:32], h.NumSlots)
	buf[32] = h.DisplacementWidth
	buf[33] = h.Flags
	binary.LittleEndian.PutUint16(buf[34:36], h.Attempts)
	copy(buf[36:64], h.Reserved[:])
}

// decodeHeader parses a 64-byte header.
func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < headerSize {
		return nil, pherrors.ErrTruncatedFile
	}

	h := &header{
		Magic:             binary.LittleEndian.Uint32(buf[0:4]),
		Version:           binary.LittleEndian.Uint16(buf[4:6]),
		HashAlgorithm:     HashAlgorithm(binary.LittleEndian.Uint16(buf[6:8])),
		Seed:              binary.LittleEndian.Uint64(buf[8:16]),
		NumKeys:           binary.LittleEndian.Uint64(buf[16:24]),
		NumBuckets:        binary.LittleEndian.Uint32(buf[24:28]),
		NumSlots:          binary.LittleEndian.Uint32(buf[28:32]),
		DisplacementWidth: buf[32],
		Flags:             buf[33],
		Attempts:          binary.LittleEndian.Uint16(buf[34:36]),
	}
	copy(h.Reserved[:], buf[36:64])

	if h.Magic != magic {
		return nil, pherrors.ErrInvalidMagic
	}
	if h.Version != version {
		return nil, pherrors.ErrInvalidVersion
	}
	if !encoding.ValidDisplacementWidth(int(h.DisplacementWidth)) {
		return nil, pherrors.ErrCorruptedIndex
	}
	if h.NumKeys > uint64(h.NumSlots) {
		return nil, pherrors.ErrCorruptedIndex
	}
	if h.NumKeys > 0 && h.NumBuckets == 0 {
		return nil, pherrors.ErrCorruptedIndex
	}

	return h, nil
}

// isSet returns true if the table was built without values.
func (h *header) isSet() bool {
	return h.Flags&flagSet != 0
}

// displacementRegionSize returns m × w.
func (h *header) displacementRegionSize() uint64 {
	return uint64(h.NumBuckets) * uint64(h.DisplacementWidth)
}

// slotOffsetsSize returns (s+1) × 4, including the end sentinel.
func (h *header) slotOffsetsSize() uint64 {
	return (uint64(h.NumSlots) + 1) * slotOffsetSize
}

// footer is the 32-byte table footer.
//
// Layout:
//
//	Offset  Size  Field              Type
//	0       8     DisplacementHash   uint64_le (xxHash64 of displacement region)
//	8       8     SlotRegionHash     uint64_le (xxHash64 of slot offsets + entries)
//	16      16    Reserved           [16]byte (zero)
type footer struct {
	DisplacementHash uint64   // 8 bytes: xxHash64 of displacement region
	SlotRegionHash   uint64   // 8 bytes: xxHash64 of slot region
	Reserved         [16]byte // 16 bytes: reserved for future use
}

// encodeTo serializes the footer into an existing buffer.
func (f *footer) encodeTo(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], f.DisplacementHash)
	binary.LittleEndian.PutUint64(buf[8:16], f.SlotRegionHash)
	copy(buf[16:32], f.Reserved[:])
}

// decodeFooter parses a 32-byte footer.
func decodeFooter(buf []byte) (*footer, error) {
	if len(buf) < footerSize {
		return nil, pherrors.ErrTruncatedFile
	}

	f := &footer{
		DisplacementHash: binary.LittleEndian.Uint64(buf[0:8]),
		SlotRegionHash:   binary.LittleEndian.Uint64(buf[8:16]),
	}
	copy(f.Reserved[:], buf[16:32])

	return f, nil
}
