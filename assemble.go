package phtable

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/tamirms/phtable/internal/displace"
	"github.com/tamirms/phtable/internal/encoding"
)

// assemble serializes a solved table into a single exactly-sized buffer.
//
// Layout: [Header][UserMetaLen][UserMeta][Displacements][SlotOffsets][Entries][Footer]
//
// Slot offsets are relative to the start of the entry region; offset s is
// the end sentinel, so slot i occupies [offsets[i], offsets[i+1]). Empty
// slots have zero length.
func assemble(cfg *buildConfig, entries []Entry, seed uint64, attempts int, solver *displace.Solver) []byte {
	displacements := solver.Displacements()
	numBuckets := len(displacements)
	numSlots := solver.NumSlots()
	width := encoding.DisplacementWidth(solver.MaxDisplacement())

	var entryBytes int
	for i := range entries {
		entryBytes += encoding.EntrySize(entries[i].Key, entries[i].Value)
	}

	dispSize := numBuckets * width
	offsetsSize := (numSlots + 1) * slotOffsetSize
	total := headerSize + userMetadataLenSize + len(cfg.userMetadata) +
		dispSize + offsetsSize + entryBytes + footerSize
	buf := make([]byte, total)

	hdr := header{
		Magic:             magic,
		Version:           version,
		HashAlgorithm:     cfg.hashAlgorithm,
		Seed:              seed,
		NumKeys:           uint64(len(entries)),
		NumBuckets:        uint32(numBuckets),
		NumSlots:          uint32(numSlots),
		DisplacementWidth: uint8(width),
		Attempts:          uint16(attempts),
	}
	if cfg.setMode {
		hdr.Flags |= flagSet
	}
	hdr.encodeTo(buf[:headerSize])

	off := headerSize
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(cfg.userMetadata)))
	off += userMetadataLenSize
	off += copy(buf[off:], cfg.userMetadata)

	dispStart := off
	for b, d := range displacements {
		encoding.PutDisplacement(buf[dispStart:dispStart+dispSize], b, width, d)
	}
	off += dispSize

	slotStart := off
	offsets := buf[off : off+offsetsSize]
	entryRegion := buf[off+offsetsSize : off+offsetsSize+entryBytes]
	var cursor int
	for slot := 0; slot < numSlots; slot++ {
		binary.LittleEndian.PutUint32(offsets[slot*slotOffsetSize:], uint32(cursor))
		if k, ok := solver.Owner(slot); ok {
			cursor += encoding.PutEntry(entryRegion[cursor:], entries[k].Key, entries[k].Value)
		}
	}
	binary.LittleEndian.PutUint32(offsets[numSlots*slotOffsetSize:], uint32(cursor))
	off += offsetsSize + entryBytes

	ft := footer{
		DisplacementHash: xxhash.Sum64(buf[dispStart : dispStart+dispSize]),
		SlotRegionHash:   xxhash.Sum64(buf[slotStart:off]),
	}
	ft.encodeTo(buf[off:])

	return buf
}
