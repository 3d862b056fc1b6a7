package selection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteBackend stores records in the "storage" table.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend creates a backend over a migrated database.
func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// Read returns the record bytes under key.
func (b *SQLiteBackend) Read(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := b.db.QueryRowContext(ctx, "SELECT data FROM storage WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying storage: %w", err)
	}
	return []byte(data), nil
}

// Write upserts the record bytes under key.
func (b *SQLiteBackend) Write(ctx context.Context, key string, data []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO storage (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing storage: %w", err)
	}
	return nil
}

// Remove deletes key.
func (b *SQLiteBackend) Remove(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, "DELETE FROM storage WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting storage: %w", err)
	}
	return nil
}
