package phtable

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	pherrors "github.com/tamirms/phtable/errors"
	"github.com/tamirms/phtable/internal/displace"
	"github.com/tamirms/phtable/internal/encoding"
	"github.com/tamirms/phtable/internal/fixed"
	"github.com/tamirms/phtable/internal/keyhash"
)

// Entry is one key/value pair of the table's source set.
type Entry struct {
	Key   []byte
	Value []byte
}

// BuildError reports a construction that failed on every attempt.
// It wraps ErrRetriesExhausted.
type BuildError struct {
	NumKeys    int     // keys in the input set
	Attempts   int     // attempts made
	Seed       uint64  // seed of the final attempt
	Bucket     int     // bucket that could not be placed on the final attempt
	BucketSize int     // keys in that bucket
	LoadFactor float64 // λ
	SlotLoad   float64 // α
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%v: keys=%d attempts=%d seed=%#x bucket=%d bucketSize=%d lambda=%g alpha=%g",
		pherrors.ErrRetriesExhausted, e.NumKeys, e.Attempts, e.Seed, e.Bucket, e.BucketSize,
		e.LoadFactor, e.SlotLoad)
}

// Unwrap makes errors.Is(err, ErrRetriesExhausted) hold for a *BuildError.
func (e *BuildError) Unwrap() error {
	return pherrors.ErrRetriesExhausted
}

// Builder collects a fixed number of entries and builds a Table from them.
//
// Thread Safety: A Builder is NOT safe for concurrent use.
type Builder struct {
	cfg        *buildConfig
	entries    fixed.Seq[Entry]
	entryBytes uint64
	closed     bool
}

// NewBuilder creates a builder for exactly numKeys entries.
// Storage for the entries is reserved up front; adding more than numKeys
// entries fails with ErrCapacityOverflow.
func NewBuilder(numKeys int, opts ...BuildOption) (*Builder, error) {
	cfg, err := newBuildConfig(opts)
	if err != nil {
		return nil, err
	}
	if numKeys < 0 {
		return nil, fmt.Errorf("%w: negative key count %d", pherrors.ErrInvalidConfig, numKeys)
	}
	if numKeys > cfg.maxKeys {
		return nil, fmt.Errorf("%w: %d keys exceed capacity %d",
			pherrors.ErrCapacityOverflow, numKeys, cfg.maxKeys)
	}
	return &Builder{
		cfg:     cfg,
		entries: fixed.New[Entry](numKeys),
	}, nil
}

// Add adds a key/value pair. Both are copied, so the caller can reuse the
// slices after this call. Keys may be added in any order.
func (b *Builder) Add(key, value []byte) error {
	if b.closed {
		return pherrors.ErrBuilderClosed
	}
	size := uint64(encoding.EntrySize(key, value))
	if b.entryBytes+size > maxEntryBytes {
		return fmt.Errorf("%w: entry data exceeds %d bytes", pherrors.ErrCapacityOverflow, uint64(maxEntryBytes))
	}
	e := Entry{Key: bytes.Clone(key), Value: bytes.Clone(value)}
	if err := b.entries.Append(e); err != nil {
		return fmt.Errorf("%w: more than %d keys added", err, b.entries.Cap())
	}
	b.entryBytes += size
	return nil
}

// Finish builds the table from the added entries and closes the builder.
// Exactly numKeys entries must have been added.
func (b *Builder) Finish() (*Table, error) {
	if b.closed {
		return nil, pherrors.ErrBuilderClosed
	}
	b.closed = true

	if b.entries.Len() != b.entries.Cap() {
		return nil, fmt.Errorf("%w: expected %d keys, got %d",
			pherrors.ErrKeyCountMismatch, b.entries.Cap(), b.entries.Len())
	}
	t, err := construct(b.cfg, b.entries.Items())
	b.entries.Reset()
	return t, err
}

// Build builds a table mapping every entry's key to its value.
// Keys must be unique. The entries are not retained.
func Build(entries []Entry, opts ...BuildOption) (*Table, error) {
	cfg, err := newBuildConfig(opts)
	if err != nil {
		return nil, err
	}
	return construct(cfg, entries)
}

// BuildSet builds a table over keys without values. Lookups report
// membership and slot index only.
func BuildSet(keys [][]byte, opts ...BuildOption) (*Table, error) {
	cfg, err := newBuildConfig(opts)
	if err != nil {
		return nil, err
	}
	cfg.setMode = true
	entries := make([]Entry, len(keys))
	for i, k := range keys {
		entries[i] = Entry{Key: k}
	}
	return construct(cfg, entries)
}

// construct runs the hash-and-displace search with seed retries and
// assembles the table image on success.
func construct(cfg *buildConfig, entries []Entry) (*Table, error) {
	n := len(entries)
	if n > cfg.maxKeys {
		return nil, fmt.Errorf("%w: %d keys exceed capacity %d",
			pherrors.ErrCapacityOverflow, n, cfg.maxKeys)
	}
	if err := checkEntries(entries); err != nil {
		return nil, err
	}

	numBuckets, err := displace.NumBuckets(n, cfg.loadFactor)
	if err != nil {
		return nil, err
	}
	numSlots, err := displace.NumSlots(n, cfg.slotLoad)
	if err != nil {
		return nil, err
	}

	solver, err := displace.NewSolver(n, numBuckets, numSlots, cfg.maxDisplacement)
	if err != nil {
		return nil, err
	}
	plan := displace.NewPlan(n, numBuckets)
	pairs := make([]keyhash.Pair, n)

	log := cfg.logger.With(
		zap.Int("keys", n),
		zap.Int("buckets", numBuckets),
		zap.Int("slots", numSlots),
	)

	seed := cfg.globalSeed
	var failure *displace.Failure
	for attempt := 1; attempt <= cfg.maxRetries; attempt++ {
		if attempt > 1 {
			seed = keyhash.NextSeed(seed)
		}
		for i := range entries {
			pairs[i] = cfg.hasher.Hash(seed, entries[i].Key)
		}
		if err := plan.Assign(pairs); err != nil {
			return nil, err
		}

		err := solver.Solve(plan, pairs)
		if err == nil {
			log.Debug("table built",
				zap.Int("attempts", attempt),
				zap.Uint64("seed", seed),
				zap.Int("maxBucketSize", plan.MaxBucketSize()),
				zap.Uint32("maxDisplacement", solver.MaxDisplacement()))
			data := assemble(cfg, entries, seed, attempt, solver)
			return OpenBytes(data)
		}
		if !errors.As(err, &failure) {
			return nil, err
		}
		log.Debug("construction attempt failed",
			zap.Int("attempt", attempt),
			zap.Uint64("seed", seed),
			zap.Int("bucket", failure.Bucket),
			zap.Int("bucketSize", failure.Size),
			zap.Int("placed", failure.Placed))
	}

	return nil, &BuildError{
		NumKeys:    n,
		Attempts:   cfg.maxRetries,
		Seed:       seed,
		Bucket:     failure.Bucket,
		BucketSize: failure.Size,
		LoadFactor: cfg.loadFactor,
		SlotLoad:   cfg.slotLoad,
	}
}

// checkEntries rejects duplicate keys and entry data too large for
// uint32 slot offsets.
func checkEntries(entries []Entry) error {
	var total uint64
	for i := range entries {
		total += uint64(encoding.EntrySize(entries[i].Key, entries[i].Value))
	}
	if total > maxEntryBytes {
		return fmt.Errorf("%w: entry data exceeds %d bytes", pherrors.ErrCapacityOverflow, uint64(maxEntryBytes))
	}

	if len(entries) < 2 {
		return nil
	}
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return bytes.Compare(entries[a].Key, entries[b].Key)
	})
	for i := 1; i < len(order); i++ {
		if bytes.Equal(entries[order[i-1]].Key, entries[order[i]].Key) {
			return fmt.Errorf("%w: %q", pherrors.ErrDuplicateKey, entries[order[i]].Key)
		}
	}
	return nil
}
