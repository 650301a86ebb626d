package checkpoint

import "errors"

// Common, reusable store errors.  Sentinel variables let callers detect
// conditions via errors.Is/As instead of brittle string comparisons.

var (
	// ErrNotFound is returned when the requested snapshot does not exist in
	// the underlying storage.
	ErrNotFound = errors.New("checkpoint: not found")

	// ErrInvalidID indicates that the supplied key is empty or otherwise
	// invalid.
	ErrInvalidID = errors.New("checkpoint: invalid id")

	// ErrNilEntity is returned when the caller attempts to persist a nil
	// pointer.
	ErrNilEntity = errors.New("checkpoint: nil entity")
)
