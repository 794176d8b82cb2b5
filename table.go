package phtable

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"os"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"

	pherrors "github.com/tamirms/phtable/errors"
	"github.com/tamirms/phtable/internal/displace"
	"github.com/tamirms/phtable/internal/encoding"
	"github.com/tamirms/phtable/internal/keyhash"
)

// Table is an immutable perfect-hash table.
//
// Every key of the source set maps to its own slot, found with one hash
// computation, one displacement read and one key comparison.
//
// Thread Safety:
// - Get, Index, Contains, All and other read methods are safe for concurrent use
// - Close is NOT safe to call concurrently with lookups
// - After Close returns, lookups report every key as absent
type Table struct {
	// Memory map (nil for tables built in memory or opened with OpenBytes)
	mmap mmap.MMap
	data []byte

	header *header
	hasher keyhash.Hasher

	// Regions of data
	userMetadata  []byte
	displacements []byte // m × w
	slotOffsets   []byte // (s+1) × 4
	entries       []byte

	closed atomic.Bool
}

// Stats holds table statistics.
type Stats struct {
	NumKeys           uint64
	NumBuckets        uint32
	NumSlots          uint32
	LoadFactor        float64 // keys per bucket
	SlotLoad          float64 // keys per slot
	DisplacementWidth int     // bytes per displacement
	MaxDisplacement   uint32
	Attempts          int
	HashAlgorithm     HashAlgorithm
	BitsPerKey        float64 // displacement bits per key
	TableSize         int64
}

// Open opens a table file for lookups.
// It opens the file, memory-maps it, and closes the file descriptor.
func Open(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table file: %w", err)
	}
	defer file.Close()
	return OpenFile(file)
}

// OpenFile opens a table by memory-mapping the given file.
// The caller is responsible for closing f. Per POSIX mmap(2), f may be
// closed immediately after OpenFile returns.
func OpenFile(f *os.File) (*Table, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat table file: %w", err)
	}
	if stat.Size() < minTableSize {
		return nil, pherrors.ErrTruncatedFile
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap table file: %w", err)
	}
	adviseRandom(mm)

	t := &Table{
		mmap: mm,
		data: []byte(mm),
	}
	if err := t.initFromData(); err != nil {
		return nil, errors.Join(err, t.Close())
	}
	return t, nil
}

// OpenBytes creates a table from an in-memory image, such as one produced
// by Bytes or embedded with //go:embed. No copy is made; the caller must
// not modify data while the Table is in use. Close is a no-op.
func OpenBytes(data []byte) (*Table, error) {
	if len(data) < minTableSize {
		return nil, pherrors.ErrTruncatedFile
	}
	t := &Table{data: data}
	if err := t.initFromData(); err != nil {
		return nil, err
	}
	return t, nil
}

// MustOpenBytes is like OpenBytes but panics on error.
// It is intended for tables embedded in the binary.
func MustOpenBytes(data []byte) *Table {
	t, err := OpenBytes(data)
	if err != nil {
		panic("phtable: MustOpenBytes: " + err.Error())
	}
	return t
}

// initFromData parses the header and locates every region of t.data.
// Checksums are not computed here; see Verify.
func (t *Table) initFromData() error {
	size := uint64(len(t.data))

	hdr, err := decodeHeader(t.data[:headerSize])
	if err != nil {
		return err
	}
	t.header = hdr

	t.hasher, err = newKeyHasher(hdr.HashAlgorithm)
	if err != nil {
		return err
	}

	// size >= minTableSize > footerSize, so no underflow.
	bodyEnd := size - footerSize

	offset := uint64(headerSize)
	if offset+userMetadataLenSize > bodyEnd {
		return pherrors.ErrTruncatedFile
	}
	metaLen := uint64(binary.LittleEndian.Uint32(t.data[offset:]))
	offset += userMetadataLenSize
	if offset+metaLen > bodyEnd {
		return pherrors.ErrTruncatedFile
	}
	t.userMetadata = t.data[offset : offset+metaLen]
	offset += metaLen

	dispEnd := offset + hdr.displacementRegionSize()
	offsetsEnd := dispEnd + hdr.slotOffsetsSize()
	if offsetsEnd > bodyEnd {
		return pherrors.ErrTruncatedFile
	}
	t.displacements = t.data[offset:dispEnd]
	t.slotOffsets = t.data[dispEnd:offsetsEnd]
	t.entries = t.data[offsetsEnd:bodyEnd]

	if t.slotOffset(0) != 0 || uint64(t.slotOffset(int(hdr.NumSlots))) != uint64(len(t.entries)) {
		return fmt.Errorf("%w: slot offsets do not cover the entry region", pherrors.ErrCorruptedIndex)
	}
	return nil
}

// Close closes the table and releases resources.
func (t *Table) Close() error {
	if t.closed.Swap(true) {
		return nil // Already closed
	}
	if t.mmap != nil {
		return t.mmap.Unmap()
	}
	return nil
}

func (t *Table) slotOffset(i int) uint32 {
	return binary.LittleEndian.Uint32(t.slotOffsets[i*slotOffsetSize:])
}

// slotEntry returns the encoded entry stored in slot, or nil if the slot is
// empty or its range is malformed.
func (t *Table) slotEntry(slot int) []byte {
	start, end := t.slotOffset(slot), t.slotOffset(slot+1)
	if start >= end || uint64(end) > uint64(len(t.entries)) {
		return nil
	}
	return t.entries[start:end]
}

// lookup locates the slot holding key.
func (t *Table) lookup(key []byte) (slot int, value []byte, ok bool) {
	if t.closed.Load() {
		return 0, nil, false
	}
	hdr := t.header
	if hdr.NumKeys == 0 {
		return 0, nil, false
	}

	p := t.hasher.Hash(hdr.Seed, key)
	b := displace.Bucket(p.G, hdr.NumBuckets)
	d := encoding.Displacement(t.displacements, int(b), int(hdr.DisplacementWidth))
	slot = int(displace.Slot(p.F, d, hdr.NumSlots))

	entry := t.slotEntry(slot)
	if entry == nil {
		return 0, nil, false
	}
	k, v, err := encoding.DecodeEntry(entry)
	if err != nil || !bytes.Equal(k, key) {
		return 0, nil, false
	}
	return slot, v, true
}

// Get returns the value stored for key.
// A key outside the source set reports false; it never aliases another
// key's value. The returned slice is backed by the table data and must not
// be modified; for an opened file it is valid until Close.
func (t *Table) Get(key []byte) ([]byte, bool) {
	_, v, ok := t.lookup(key)
	return v, ok
}

// Index returns the slot index of key, a distinct integer in [0, NumSlots)
// for every key of the source set.
func (t *Table) Index(key []byte) (int, bool) {
	slot, _, ok := t.lookup(key)
	return slot, ok
}

// Contains reports whether key is in the source set.
func (t *Table) Contains(key []byte) bool {
	_, _, ok := t.lookup(key)
	return ok
}

// All iterates over the stored entries in slot order.
func (t *Table) All() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		if t.closed.Load() {
			return
		}
		for slot := range int(t.header.NumSlots) {
			entry := t.slotEntry(slot)
			if entry == nil {
				continue
			}
			k, v, err := encoding.DecodeEntry(entry)
			if err != nil {
				return
			}
			if !yield(k, v) {
				return
			}
		}
	}
}

// Len returns the number of keys.
func (t *Table) Len() int {
	return int(t.header.NumKeys)
}

// NumBuckets returns the bucket count m.
func (t *Table) NumBuckets() int {
	return int(t.header.NumBuckets)
}

// NumSlots returns the slot count s.
func (t *Table) NumSlots() int {
	return int(t.header.NumSlots)
}

// Seed returns the seed of the attempt that built the table.
func (t *Table) Seed() uint64 {
	return t.header.Seed
}

// HashAlgorithm returns the key hash the table was built with.
func (t *Table) HashAlgorithm() HashAlgorithm {
	return t.header.HashAlgorithm
}

// IsSet reports whether the table was built with BuildSet.
func (t *Table) IsSet() bool {
	return t.header.isSet()
}

// Displacement returns the displacement of bucket b.
func (t *Table) Displacement(b int) uint32 {
	return encoding.Displacement(t.displacements, b, int(t.header.DisplacementWidth))
}

// UserMetadata returns the user metadata stored at build time.
// The returned slice is backed by the table data.
func (t *Table) UserMetadata() []byte {
	return t.userMetadata
}

// Bytes returns the serialized table. The slice aliases the table data and
// must not be modified.
func (t *Table) Bytes() []byte {
	return t.data
}

// Stats returns statistics for the table.
func (t *Table) Stats() *Stats {
	hdr := t.header
	st := &Stats{
		NumKeys:           hdr.NumKeys,
		NumBuckets:        hdr.NumBuckets,
		NumSlots:          hdr.NumSlots,
		DisplacementWidth: int(hdr.DisplacementWidth),
		Attempts:          int(hdr.Attempts),
		HashAlgorithm:     hdr.HashAlgorithm,
		TableSize:         int64(len(t.data)),
	}
	for b := range int(hdr.NumBuckets) {
		st.MaxDisplacement = max(st.MaxDisplacement, t.Displacement(b))
	}
	if hdr.NumBuckets > 0 {
		st.LoadFactor = float64(hdr.NumKeys) / float64(hdr.NumBuckets)
	}
	if hdr.NumSlots > 0 {
		st.SlotLoad = float64(hdr.NumKeys) / float64(hdr.NumSlots)
	}
	if hdr.NumKeys > 0 {
		st.BitsPerKey = float64(len(t.displacements)*8) / float64(hdr.NumKeys)
	}
	return st
}

// Verify checks the footer checksums and that every slot offset range is
// well formed. The footer is decoded on each call rather than at open time.
func (t *Table) Verify() error {
	if t.closed.Load() {
		return pherrors.ErrTableClosed
	}

	ft, err := decodeFooter(t.data[len(t.data)-footerSize:])
	if err != nil {
		return err
	}
	if xxhash.Sum64(t.displacements) != ft.DisplacementHash {
		return fmt.Errorf("%w: displacement region", pherrors.ErrChecksumFailed)
	}
	slotRegion := t.data[len(t.data)-footerSize-len(t.entries)-len(t.slotOffsets) : len(t.data)-footerSize]
	if xxhash.Sum64(slotRegion) != ft.SlotRegionHash {
		return fmt.Errorf("%w: slot region", pherrors.ErrChecksumFailed)
	}

	hdr := t.header
	var occupied uint64
	for slot := range int(hdr.NumSlots) {
		start, end := t.slotOffset(slot), t.slotOffset(slot+1)
		if start > end {
			return fmt.Errorf("%w: slot %d offsets decrease", pherrors.ErrCorruptedIndex, slot)
		}
		if uint64(end) > uint64(len(t.entries)) {
			return fmt.Errorf("%w: slot %d range exceeds entry region", pherrors.ErrCorruptedIndex, slot)
		}
		if start == end {
			continue
		}
		if _, _, err := encoding.DecodeEntry(t.entries[start:end]); err != nil {
			return fmt.Errorf("slot %d: %w", slot, err)
		}
		occupied++
	}
	if occupied != hdr.NumKeys {
		return fmt.Errorf("%w: %d occupied slots, header says %d keys",
			pherrors.ErrCorruptedIndex, occupied, hdr.NumKeys)
	}
	for b := range int(hdr.NumBuckets) {
		if t.Displacement(b) >= hdr.NumSlots {
			return fmt.Errorf("%w: bucket %d displacement out of range", pherrors.ErrCorruptedIndex, b)
		}
	}
	return nil
}
