package phtable

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"

	pherrors "github.com/tamirms/phtable/errors"
)

// WriteTo writes the serialized table to w.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	if t.closed.Load() {
		return 0, pherrors.ErrTableClosed
	}
	n, err := w.Write(t.data)
	return int64(n), err
}

// WriteFile writes the serialized table to path, replacing any existing
// file. The file is pre-allocated and written through a memory mapping.
// Callers that need an atomic replace should write to a temporary path in
// the same directory and rename it.
func (t *Table) WriteFile(path string) error {
	if t.closed.Load() {
		return pherrors.ErrTableClosed
	}
	w, err := newTableWriter(path, len(t.data))
	if err != nil {
		return err
	}
	copy(w.data, t.data)
	return w.finish()
}

// tableWriter owns a pre-allocated, memory-mapped output file.
type tableWriter struct {
	file *os.File
	mmap mmap.MMap
	data []byte // view into mmap for direct writes
}

func newTableWriter(path string, size int) (*tableWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create table file: %w", err)
	}

	// Pre-allocate disk blocks to prevent SIGBUS on disk full
	if err := fallocateFile(file, int64(size)); err != nil {
		primaryErr := fmt.Errorf("failed to allocate disk space: %w", err)
		return nil, errors.Join(primaryErr, file.Close())
	}

	mm, err := mmap.MapRegion(file, size, mmap.RDWR, 0, 0)
	if err != nil {
		primaryErr := fmt.Errorf("failed to mmap file: %w", err)
		return nil, errors.Join(primaryErr, file.Close())
	}

	w := &tableWriter{
		file: file,
		mmap: mm,
		data: []byte(mm),
	}
	prefaultRegion(w.data)
	return w, nil
}

// finish flushes the mapping to disk and releases the writer.
func (w *tableWriter) finish() error {
	if err := w.mmap.Flush(); err != nil {
		primaryErr := fmt.Errorf("failed to flush table file: %w", err)
		return errors.Join(primaryErr, w.close())
	}
	return w.close()
}

func (w *tableWriter) close() error {
	var unmapErr error
	if w.mmap != nil {
		unmapErr = w.mmap.Unmap()
		w.mmap = nil
	}
	var closeErr error
	if w.file != nil {
		closeErr = w.file.Close()
		w.file = nil
	}
	return errors.Join(unmapErr, closeErr)
}
