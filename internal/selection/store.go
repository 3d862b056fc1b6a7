package selection

import (
	"context"
	"errors"
	"fmt"
)

// Backend is a generic key/value store for encoded records.
type Backend interface {
	// Read returns ErrNotFound when key has no record.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write replaces the record under key.
	Write(ctx context.Context, key string, data []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store persists one instance's selection under a fixed key.
type Store struct {
	backend Backend
	key     string
	logger  Logger
}

// NewStore creates a store for key. See StorageKey.
func NewStore(backend Backend, key string) *Store {
	return &Store{backend: backend, key: key, logger: noopLogger{}}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Key returns the storage key.
func (s *Store) Key() string {
	return s.key
}

// Read returns the stored record. Errors are returned as-is: ErrNotFound,
// ErrCorruptRecord, ErrVersionMismatch, or ErrStorage.
func (s *Store) Read(ctx context.Context) (Record, error) {
	data, err := s.backend.Read(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: reading %s: %v", ErrStorage, s.key, err)
	}
	return DecodeRecord(data)
}

// Load returns the stored selection, or an empty one.
//
// Any failure is logged and reads as "no selection"; Load never fails.
//
// Returns:
//   - []string: the stored selection, never nil
//   - bool: true only when a valid record was found
func (s *Store) Load(ctx context.Context) ([]string, bool) {
	rec, err := s.Read(ctx)
	switch {
	case err == nil:
		return rec.Entities, true
	case errors.Is(err, ErrNotFound):
		s.logger.Debug("no stored selection", "key", s.key)
	default:
		s.logger.Warn("ignoring stored selection", "key", s.key, "error", err)
	}
	return []string{}, false
}

// Save persists the selection at the current version.
func (s *Store) Save(ctx context.Context, entities []string) error {
	data, err := NewRecord(entities).Encode()
	if err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrStorage, err)
	}
	if err := s.backend.Write(ctx, s.key, data); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrStorage, s.key, err)
	}
	return nil
}

// Delete removes the stored record.
func (s *Store) Delete(ctx context.Context) error {
	if err := s.backend.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("%w: removing %s: %v", ErrStorage, s.key, err)
	}
	return nil
}
