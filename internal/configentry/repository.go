package configentry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines persistence for config entries.
type Repository interface {
	// Get returns ErrEntryNotFound if the entry does not exist.
	Get(ctx context.Context, id string) (*Entry, error)

	// List returns every entry oldest first.
	List(ctx context.Context) ([]Entry, error)

	// Save inserts or replaces an entry.
	Save(ctx context.Context, e *Entry) error

	// Delete returns ErrEntryNotFound if the entry does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// timeFormat sorts lexically, so ORDER BY created_at is chronological.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const entryColumns = `entry_id, domain, title, version, data, options, created_at, updated_at`

// Get retrieves one entry.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM config_entries WHERE entry_id = ?", id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying config entry %s: %w", id, err)
	}
	return e, nil
}

// List retrieves every entry ordered by creation.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM config_entries ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("querying config entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning config entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating config entries: %w", err)
	}
	return entries, nil
}

// Save inserts or replaces an entry. CreatedAt is kept on update.
func (r *SQLiteRepository) Save(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encoding entry data: %w", err)
	}
	options, err := json.Marshal(e.Options)
	if err != nil {
		return fmt.Errorf("encoding entry options: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO config_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			title = excluded.title,
			version = excluded.version,
			data = excluded.data,
			options = excluded.options,
			updated_at = excluded.updated_at`,
		e.ID, e.Domain, e.Title, e.Version,
		string(data), string(options),
		e.CreatedAt.UTC().Format(timeFormat),
		e.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("saving config entry %s: %w", e.ID, err)
	}
	return nil
}

// Delete removes an entry.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM config_entries WHERE entry_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting config entry: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	} else if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(scanner rowScanner) (*Entry, error) {
	var e Entry
	var data, options, createdAt, updatedAt string

	if err := scanner.Scan(
		&e.ID, &e.Domain, &e.Title, &e.Version, &data, &options, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return nil, fmt.Errorf("decoding data of %s: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(options), &e.Options); err != nil {
		return nil, fmt.Errorf("decoding options of %s: %w", e.ID, err)
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// parseTime ignores errors; the format is written by this package.
func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s) //nolint:errcheck // format is controlled
	return t
}
