package selection

import "errors"

// Domain errors for the selection package.
var (
	// ErrNotFound is returned by a Backend when the key has no record.
	ErrNotFound = errors.New("selection: record not found")

	// ErrStorage wraps any failure talking to a Backend.
	ErrStorage = errors.New("selection: storage error")

	// ErrVersionMismatch is returned when a stored record has an unknown
	// schema version.
	ErrVersionMismatch = errors.New("selection: storage version mismatch")

	// ErrCorruptRecord is returned when stored bytes are not a valid Record.
	ErrCorruptRecord = errors.New("selection: corrupt record")

	// ErrWriterClosed is returned by Writer.Flush after Close and logged
	// for saves scheduled after Close.
	ErrWriterClosed = errors.New("selection: writer closed")
)
