package entity

import "errors"

// Domain errors for the entity package.
//
//	if errors.Is(err, entity.ErrEntityNotFound) {
//	    // handle not found case
//	}
var (
	// ErrEntityNotFound is returned when an entity ID is not in the registry.
	ErrEntityNotFound = errors.New("entity: not found")

	// ErrAreaNotFound is returned when an area ID does not exist.
	ErrAreaNotFound = errors.New("entity: area not found")

	// ErrInvalidEntityID is returned when an ID is not "<domain>.<object_id>".
	ErrInvalidEntityID = errors.New("entity: invalid entity id")

	// ErrInvalidEntry is returned when registry entry validation fails.
	ErrInvalidEntry = errors.New("entity: invalid entry")

	// ErrInvalidArea is returned when area validation fails.
	ErrInvalidArea = errors.New("entity: invalid area")

	// ErrInvalidState is returned when a state write is rejected.
	ErrInvalidState = errors.New("entity: invalid state")
)
