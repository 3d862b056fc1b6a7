package integration

import "errors"

var (
	// ErrSetup wraps a registration failure that aborted setup.
	ErrSetup = errors.New("integration: setup failed")

	// ErrNotConfigured is returned when no instance is running.
	ErrNotConfigured = errors.New("integration: not configured")

	// ErrEntryNotLoaded is returned when an explicit entry ID has no
	// running instance.
	ErrEntryNotLoaded = errors.New("integration: entry not loaded")
)
