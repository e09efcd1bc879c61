package memutils

import "github.com/cockroachdb/errors"

var (
	// ErrNoFit is returned when no free region is large enough to hold a requested allocation.
	// It counts as a failed allocation.
	ErrNoFit = errors.New("no free region large enough for the requested allocation")
	// ErrMaxBlocksReached is returned when a free region could hold the allocation but splitting
	// it would exceed the block count bound of the arena. It counts as a failed allocation.
	ErrMaxBlocksReached = errors.New("cannot split free region: maximum block count reached")
	// ErrNotFound is returned from deallocation when the address or owner does not match any
	// live allocation. It does not affect allocation counters.
	ErrNotFound = errors.New("no allocated block matches the deallocation key")
	// ErrInvalidSize is returned when a requested size falls outside [1, total size]
	ErrInvalidSize = errors.New("invalid allocation size")
	// ErrAddressingMode is returned when an allocation is addressed with a key type the arena
	// was not created for
	ErrAddressingMode = errors.New("deallocation key does not match the arena addressing mode")
	// ErrMissingOwner is returned when an owner-keyed arena receives an allocation without an owner
	ErrMissingOwner = errors.New("owner-keyed allocations require an owner")
)
