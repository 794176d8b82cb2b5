// Package errors defines all exported error sentinels for the phtable library.
//
// This is the single source of truth for error values. Both the top-level
// phtable package and internal packages import from here, ensuring
// errors.Is checks work across package boundaries.
package errors

import "errors"

// Build errors
var (
	ErrBuilderClosed    = errors.New("phtable: builder is closed")
	ErrDuplicateKey     = errors.New("phtable: duplicate key detected")
	ErrCapacityOverflow = errors.New("phtable: bounded storage capacity exceeded")
	ErrInvalidConfig    = errors.New("phtable: invalid build configuration")
	ErrRetriesExhausted = errors.New("phtable: construction failed after all seed retries")
	ErrKeyCountMismatch = errors.New("phtable: key count mismatch")
)

// Table errors
var (
	ErrInvalidMagic   = errors.New("phtable: invalid magic number")
	ErrInvalidVersion = errors.New("phtable: unsupported version")
	ErrChecksumFailed = errors.New("phtable: table checksum verification failed")
	ErrTruncatedFile  = errors.New("phtable: table data is truncated")
	ErrCorruptedIndex = errors.New("phtable: table data is corrupted")
	ErrTableClosed    = errors.New("phtable: table is closed")
	ErrEntryMismatch  = errors.New("phtable: table does not reproduce source entry")
)
