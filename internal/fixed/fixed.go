// Package fixed provides a bounded-capacity, append-only sequence.
//
// A Seq never grows past the capacity it was created with. Appending beyond
// it returns ErrCapacityOverflow instead of reallocating, so every
// construction buffer is sized once from worst-case bounds.
package fixed

import (
	"fmt"

	pherrors "github.com/tamirms/phtable/errors"
)

// Seq is an append-only sequence with a fixed maximum length.
// The zero value has capacity 0.
type Seq[T any] struct {
	items []T
}

// New returns an empty Seq that can hold up to capacity items.
// All storage is allocated here.
func New[T any](capacity int) Seq[T] {
	return Seq[T]{items: make([]T, 0, capacity)}
}

// Append adds v to the end of the sequence.
// Returns ErrCapacityOverflow if the sequence is full; s is left unchanged.
func (s *Seq[T]) Append(v T) error {
	if len(s.items) == cap(s.items) {
		return fmt.Errorf("%w: sequence full at %d items", pherrors.ErrCapacityOverflow, cap(s.items))
	}
	s.items = append(s.items, v)
	return nil
}

// Len returns the number of items appended since creation or the last Reset.
func (s *Seq[T]) Len() int {
	return len(s.items)
}

// Cap returns the fixed capacity.
func (s *Seq[T]) Cap() int {
	return cap(s.items)
}

// At returns the item at index i. Panics if i is out of range.
func (s *Seq[T]) At(i int) T {
	return s.items[i]
}

// Items returns the appended items. The slice aliases internal storage and
// is only valid until the next Append or Reset.
func (s *Seq[T]) Items() []T {
	return s.items
}

// Reset empties the sequence, keeping its storage.
func (s *Seq[T]) Reset() {
	clear(s.items)
	s.items = s.items[:0]
}
