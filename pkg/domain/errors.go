package domain

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced by registry operations. Every failure is an
// immediate, synchronous rejection of the single call that triggered it and
// leaves state untouched.
var (
	// ErrNotOwner rejects owner-restricted operations from other identities.
	ErrNotOwner = errors.New("caller is not the registry owner")
	// ErrNoPermission rejects a mutating call the access gate (or an
	// entity-creator ownership check) does not allow.
	ErrNoPermission = errors.New("caller has no permission for resource kind")
	// ErrStringTooLong rejects text fields above the configured maximum.
	ErrStringTooLong = errors.New("string field exceeds maximum length")
	// ErrNotFound rejects references to identifiers absent from their collection.
	ErrNotFound = errors.New("referenced record not found")
	// ErrExceedsLimit rejects appends to a bounded list already at capacity.
	ErrExceedsLimit = errors.New("bounded list at capacity")
	// ErrInvalidStatus rejects lifecycle operations out of order.
	ErrInvalidStatus = errors.New("entity not in required lifecycle state")
	// ErrInvalidLocation rejects Transportation processes referencing a
	// nonexistent location.
	ErrInvalidLocation = errors.New("transportation process references unknown location")
	// ErrInvalidKind rejects resource or process kinds outside their closed sets.
	ErrInvalidKind = errors.New("kind outside the supported set")
)

// NotFoundError carries the kind and identifier of a missing reference. It
// matches ErrNotFound under errors.Is.
type NotFoundError struct {
	Kind ResourceKind
	ID   uint64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// Is reports whether target is the ErrNotFound sentinel.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }
