package phtable

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	pherrors "github.com/tamirms/phtable/errors"
)

// contextCheckInterval is how many entries a worker checks between
// context cancellation checks.
const contextCheckInterval = 1024

// CheckEntries verifies that the table reproduces entries: it holds exactly
// len(entries) keys and every key looks up its own value. The entries are
// split across workers goroutines (at least one).
//
// Returns ErrEntryMismatch naming the first mismatching key a worker finds,
// or the context error if ctx is cancelled.
func (t *Table) CheckEntries(ctx context.Context, entries []Entry, workers int) error {
	if t.closed.Load() {
		return pherrors.ErrTableClosed
	}
	if len(entries) != t.Len() {
		return fmt.Errorf("%w: table has %d keys, expected %d",
			pherrors.ErrEntryMismatch, t.Len(), len(entries))
	}

	workers = max(1, min(workers, len(entries)))
	chunk := (len(entries) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(entries); start += chunk {
		part := entries[start:min(start+chunk, len(entries))]
		g.Go(func() error {
			for i := range part {
				if i%contextCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				v, ok := t.Get(part[i].Key)
				if !ok {
					return fmt.Errorf("%w: key %q not found", pherrors.ErrEntryMismatch, part[i].Key)
				}
				if !t.IsSet() && !bytes.Equal(v, part[i].Value) {
					return fmt.Errorf("%w: key %q has a different value", pherrors.ErrEntryMismatch, part[i].Key)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
