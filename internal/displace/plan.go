package displace

import (
	"fmt"

	pherrors "github.com/tamirms/phtable/errors"
	"github.com/tamirms/phtable/internal/keyhash"
)

// Plan is the bucket layout of a single construction attempt.
//
// Buckets are stored in CSR form: the key indices of bucket b are
// members[starts[b]:starts[b+1]], in ascending key order. All storage is
// allocated by NewPlan from the (maxKeys, numBuckets) bounds and reused by
// every Assign call.
type Plan struct {
	numBuckets int
	numKeys    int

	starts  []uint32 // len numBuckets+1
	members []uint32 // len maxKeys
	order   []uint32 // bucket indices, largest first, ties by ascending index
	cursor  []uint32 // fill cursor per bucket (scratch)

	// Counting sort buffers, indexed by bucket size (at most maxKeys).
	sortCounts    []uint32
	sortPositions []uint32

	maxBucketSize int
}

// NewPlan allocates a plan for up to maxKeys keys spread over numBuckets
// buckets.
func NewPlan(maxKeys, numBuckets int) *Plan {
	return &Plan{
		numBuckets:    numBuckets,
		starts:        make([]uint32, numBuckets+1),
		members:       make([]uint32, maxKeys),
		order:         make([]uint32, numBuckets),
		cursor:        make([]uint32, numBuckets),
		sortCounts:    make([]uint32, maxKeys+1),
		sortPositions: make([]uint32, maxKeys+1),
	}
}

// Assign places key i into bucket pairs[i].G mod numBuckets and computes the
// solving order. Any previous assignment is discarded.
//
// Returns ErrCapacityOverflow if there are more keys than the plan was sized
// for, or keys but no buckets.
func (p *Plan) Assign(pairs []keyhash.Pair) error {
	n := len(pairs)
	if n > len(p.members) {
		return fmt.Errorf("%w: %d keys exceed planned capacity %d",
			pherrors.ErrCapacityOverflow, n, len(p.members))
	}
	if n > 0 && p.numBuckets == 0 {
		return fmt.Errorf("%w: %d keys but no buckets", pherrors.ErrCapacityOverflow, n)
	}
	p.numKeys = n

	m := uint32(p.numBuckets)
	clear(p.starts)

	// Count bucket sizes into starts[b+1], then prefix-sum into offsets.
	for i := range pairs {
		p.starts[Bucket(pairs[i].G, m)+1]++
	}
	maxSize := uint32(0)
	for b := 0; b < p.numBuckets; b++ {
		size := p.starts[b+1]
		if size > maxSize {
			maxSize = size
		}
		p.starts[b+1] += p.starts[b]
	}
	p.maxBucketSize = int(maxSize)

	// Scatter key indices. Iterating keys in order keeps each bucket's
	// members ascending.
	copy(p.cursor, p.starts[:p.numBuckets])
	for i := range pairs {
		b := Bucket(pairs[i].G, m)
		p.members[p.cursor[b]] = uint32(i)
		p.cursor[b]++
	}

	p.sortBuckets()
	return nil
}

// sortBuckets orders buckets by size (largest first) using counting sort.
// Buckets are visited in ascending index order, so equal sizes keep
// ascending index order.
func (p *Plan) sortBuckets() {
	n := p.numBuckets
	if n == 0 {
		return
	}
	maxSize := p.maxBucketSize
	counts := p.sortCounts[:maxSize+1]
	positions := p.sortPositions[:maxSize+1]
	clear(counts)

	for b := 0; b < n; b++ {
		counts[p.BucketSize(b)]++
	}

	// Convert to positions (reverse order for largest first)
	pos := uint32(0)
	for size := maxSize; size >= 0; size-- {
		positions[size] = pos
		pos += counts[size]
	}

	for b := 0; b < n; b++ {
		size := p.BucketSize(b)
		p.order[positions[size]] = uint32(b)
		positions[size]++
	}
}

// NumBuckets returns the bucket count m.
func (p *Plan) NumBuckets() int {
	return p.numBuckets
}

// NumKeys returns the number of keys in the current assignment.
func (p *Plan) NumKeys() int {
	return p.numKeys
}

// BucketSize returns the number of keys in bucket b.
func (p *Plan) BucketSize(b int) int {
	return int(p.starts[b+1] - p.starts[b])
}

// Bucket returns the key indices of bucket b (direct reference, no copy).
func (p *Plan) Bucket(b int) []uint32 {
	return p.members[p.starts[b]:p.starts[b+1]]
}

// Order returns bucket indices in solving order.
func (p *Plan) Order() []uint32 {
	return p.order[:p.numBuckets]
}

// MaxBucketSize returns the size of the largest bucket.
func (p *Plan) MaxBucketSize() int {
	return p.maxBucketSize
}
