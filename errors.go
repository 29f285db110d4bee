package ohc

import "errors"

// Sentinel errors for the cache's failure kinds. Callers should match
// with errors.Is; wrapped errors carry additional context via
// fmt.Errorf("...: %w", ...).
var (
	// ErrInvalidArgument signals a null/empty key, negative value
	// length, or malformed configuration, raised before any lock is
	// taken.
	ErrInvalidArgument = errors.New("ohc: invalid argument")

	// ErrIOFailure wraps a serializer or sink error encountered outside
	// any partition lock.
	ErrIOFailure = errors.New("ohc: io failure")

	// ErrClosed is returned by Put, PutDeferred, Get and Remove once
	// Close has been called. Cleanup, InvalidateAll and HotN do nothing
	// after Close; Size, Capacity, MemUsed, FreeSpaceFraction, Stats and
	// ExtendedStats do not check the closed flag.
	ErrClosed = errors.New("ohc: cache is closed")

	// ErrUnsupported marks a bulk view that cannot be materialized
	// safely (e.g. an unbounded key iterator).
	ErrUnsupported = errors.New("ohc: unsupported operation")
)

// PutResult reports which of the three outcomes a Put produced.
type PutResult int

const (
	Added PutResult = iota
	Replaced
	NoMoreSpace
)

func (r PutResult) String() string {
	switch r {
	case Added:
		return "ADD"
	case Replaced:
		return "REPLACE"
	case NoMoreSpace:
		return "NO_MORE_SPACE"
	default:
		return "UNKNOWN"
	}
}
