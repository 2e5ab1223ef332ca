package store

import "errors"

// Sentinel errors for the store layer. Wrapped with fmt.Errorf elsewhere
// in the package; callers use errors.Is to discriminate.
var (
	// ErrInvariantViolation signals an internal bug, e.g. a write batch
	// whose PoIs disagree on block pointer.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrUnknownIndexer signals a PoI referencing an indexer not already
	// present in the store.
	ErrUnknownIndexer = errors.New("unknown indexer")
	// ErrNotFound signals a read query that found nothing for its key.
	ErrNotFound = errors.New("not found")
)
