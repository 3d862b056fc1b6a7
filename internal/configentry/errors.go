package configentry

import "errors"

// Domain errors for the configentry package.
var (
	// ErrEntryNotFound is returned when a config entry ID does not exist.
	ErrEntryNotFound = errors.New("configentry: entry not found")

	// ErrInvalidEntry is returned when entry validation fails.
	ErrInvalidEntry = errors.New("configentry: invalid entry")

	// ErrFlowNotFound is returned for an unknown or finished flow ID.
	ErrFlowNotFound = errors.New("configentry: flow not found")

	// ErrInvalidFlow is returned for an unknown flow kind or handler.
	ErrInvalidFlow = errors.New("configentry: invalid flow")
)
