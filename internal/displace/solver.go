package displace

import (
	"errors"
	"fmt"

	pherrors "github.com/tamirms/phtable/errors"
	"github.com/tamirms/phtable/internal/fixed"
	"github.com/tamirms/phtable/internal/keyhash"
)

// ErrExhausted is the internal retry signal: no displacement below the
// bound resolves a bucket under the current seed. The caller reselects the
// seed and starts over; it is never user-facing on its own.
var ErrExhausted = errors.New("displace: displacement search exhausted")

// Failure describes the bucket that could not be placed.
type Failure struct {
	Bucket     int // bucket index
	Size       int // number of keys in the bucket
	Placed     int // keys already placed by earlier buckets
	Candidates int // displacement values tried
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%v: bucket=%d size=%d placed=%d tried=%d",
		ErrExhausted, f.Bucket, f.Size, f.Placed, f.Candidates)
}

// Unwrap makes errors.Is(err, ErrExhausted) hold for a *Failure.
func (f *Failure) Unwrap() error {
	return ErrExhausted
}

// Solver searches per-bucket displacements for one table geometry.
//
// Slot occupancy uses generation counters: a slot is claimed in the current
// attempt iff slotGen[slot] == generation, so a new attempt starts from an
// empty table by incrementing generation instead of clearing s entries.
// probeGen does the same for the per-candidate duplicate check.
//
// A Solver is NOT safe for concurrent use.
type Solver struct {
	numBuckets      int
	numSlots        uint32
	maxDisplacement uint32

	displacements []uint32 // output: displacement per bucket
	slotOwner     []uint32 // slot -> key index (valid only if slotGen[slot] == generation)
	slotGen       []uint32
	generation    uint32

	probeGen []uint32 // slot -> probe stamp for intra-bucket collision checks
	probe    uint32

	// Per-bucket scratch: F mod numSlots for each key of the bucket being
	// placed. Bounded by the largest possible bucket (every key).
	base fixed.Seq[uint32]

	placed int
}

// NewSolver allocates a solver for up to maxKeys keys, numBuckets buckets
// and numSlots slots. maxDisplacement bounds the search per bucket; 0 or
// anything above numSlots means numSlots, since displacements are only
// meaningful modulo numSlots.
//
// Returns ErrCapacityOverflow if numSlots exceeds MaxSlots or cannot hold
// maxKeys keys.
func NewSolver(maxKeys, numBuckets, numSlots, maxDisplacement int) (*Solver, error) {
	if numSlots > MaxSlots {
		return nil, fmt.Errorf("%w: %d slots exceed maximum %d",
			pherrors.ErrCapacityOverflow, numSlots, MaxSlots)
	}
	if numSlots < maxKeys {
		return nil, fmt.Errorf("%w: %d slots cannot hold %d keys",
			pherrors.ErrCapacityOverflow, numSlots, maxKeys)
	}
	if maxDisplacement <= 0 || maxDisplacement > numSlots {
		maxDisplacement = numSlots
	}
	return &Solver{
		numBuckets:      numBuckets,
		numSlots:        uint32(numSlots),
		maxDisplacement: uint32(maxDisplacement),
		displacements:   make([]uint32, numBuckets),
		slotOwner:       make([]uint32, numSlots),
		slotGen:         make([]uint32, numSlots),
		probeGen:        make([]uint32, numSlots),
		base:            fixed.New[uint32](maxKeys),
	}, nil
}

// Solve places every bucket of plan in plan order. pairs are the sub-hashes
// the plan was assigned from.
//
// Returns a *Failure (wrapping ErrExhausted) for the first bucket no
// displacement resolves, or ErrCapacityOverflow if plan does not match the
// solver geometry. On error the solver state is undefined until the next
// Solve.
func (s *Solver) Solve(plan *Plan, pairs []keyhash.Pair) error {
	if plan.NumBuckets() != s.numBuckets {
		return fmt.Errorf("%w: plan has %d buckets, solver sized for %d",
			pherrors.ErrCapacityOverflow, plan.NumBuckets(), s.numBuckets)
	}
	if plan.NumKeys() > s.base.Cap() {
		return fmt.Errorf("%w: plan has %d keys, solver sized for %d",
			pherrors.ErrCapacityOverflow, plan.NumKeys(), s.base.Cap())
	}

	s.nextGeneration()
	s.placed = 0

	for _, b := range plan.Order() {
		bucket := plan.Bucket(int(b))
		if len(bucket) == 0 {
			// Order is largest first, so every remaining bucket is empty too.
			s.displacements[b] = 0
			continue
		}
		d, ok, tried, err := s.searchBucket(bucket, pairs)
		if err != nil {
			return err
		}
		if !ok {
			return &Failure{Bucket: int(b), Size: len(bucket), Placed: s.placed, Candidates: tried}
		}
		s.placeBucket(bucket, d)
		s.displacements[b] = d
	}
	return nil
}

// searchBucket finds the smallest d < maxDisplacement that puts every key of
// bucket in a distinct free slot. Returns the number of candidates tried.
func (s *Solver) searchBucket(bucket []uint32, pairs []keyhash.Pair) (uint32, bool, int, error) {
	numSlots := s.numSlots

	s.base.Reset()
	for _, k := range bucket {
		if err := s.base.Append(uint32(pairs[k].F % uint64(numSlots))); err != nil {
			return 0, false, 0, err
		}
	}
	base := s.base.Items()

	// Keys sharing F mod numSlots shift together under every d, so no
	// candidate can separate them.
	if len(base) > 1 && !s.distinct(base) {
		return 0, false, 0, nil
	}

	gen := s.generation
	slotGen := s.slotGen

	if len(base) == 1 {
		// Single key: the first free slot at or after base.
		start := base[0]
		for d := uint32(0); d < s.maxDisplacement; d++ {
			slot := start + d
			if slot >= numSlots {
				slot -= numSlots
			}
			if slotGen[slot] != gen {
				return d, true, int(d) + 1, nil
			}
		}
		return 0, false, int(s.maxDisplacement), nil
	}

nextCandidate:
	for d := uint32(0); d < s.maxDisplacement; d++ {
		for _, b := range base {
			slot := b + d
			if slot >= numSlots {
				slot -= numSlots
			}
			if slotGen[slot] == gen {
				continue nextCandidate
			}
		}
		return d, true, int(d) + 1, nil
	}
	return 0, false, int(s.maxDisplacement), nil
}

// distinct reports whether the residues in base are pairwise distinct.
// Distinct residues stay distinct under a common shift mod numSlots, so one
// check covers every candidate d.
func (s *Solver) distinct(base []uint32) bool {
	s.nextProbe()
	probe := s.probe
	for _, b := range base {
		if s.probeGen[b] == probe {
			return false
		}
		s.probeGen[b] = probe
	}
	return true
}

// placeBucket claims the slots of bucket under displacement d.
func (s *Solver) placeBucket(bucket []uint32, d uint32) {
	numSlots := s.numSlots
	gen := s.generation
	for i, k := range bucket {
		slot := s.base.At(i) + d
		if slot >= numSlots {
			slot -= numSlots
		}
		s.slotGen[slot] = gen
		s.slotOwner[slot] = k
	}
	s.placed += len(bucket)
}

// nextGeneration starts a fresh claim set. On wrap-around the stamps are
// cleared so a stale slot can never match.
func (s *Solver) nextGeneration() {
	s.generation++
	if s.generation == 0 {
		clear(s.slotGen)
		s.generation = 1
	}
}

func (s *Solver) nextProbe() {
	s.probe++
	if s.probe == 0 {
		clear(s.probeGen)
		s.probe = 1
	}
}

// Displacements returns the per-bucket displacements of the last successful
// Solve. The slice aliases solver storage.
func (s *Solver) Displacements() []uint32 {
	return s.displacements
}

// NumSlots returns the slot count s.
func (s *Solver) NumSlots() int {
	return int(s.numSlots)
}

// Owner returns the key index placed in slot, or false if the slot is empty.
// Only meaningful after a successful Solve.
func (s *Solver) Owner(slot int) (int, bool) {
	if s.slotGen[slot] != s.generation {
		return 0, false
	}
	return int(s.slotOwner[slot]), true
}

// MaxDisplacement returns the largest displacement recorded by the last
// successful Solve.
func (s *Solver) MaxDisplacement() uint32 {
	var maxD uint32
	for _, d := range s.displacements {
		if d > maxD {
			maxD = d
		}
	}
	return maxD
}
