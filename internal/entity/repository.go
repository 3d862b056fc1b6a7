package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines persistence for registry entries and areas.
// This abstraction allows SQLite in production and mocks in tests.
type Repository interface {
	// GetEntry returns ErrEntityNotFound if the entity does not exist.
	GetEntry(ctx context.Context, entityID string) (*Entry, error)

	// ListEntries returns every entry ordered by entity ID.
	ListEntries(ctx context.Context) ([]Entry, error)

	// UpsertEntry inserts or replaces an entry, keeping its CreatedAt.
	UpsertEntry(ctx context.Context, e *Entry) error

	// DeleteEntry returns ErrEntityNotFound if the entity does not exist.
	DeleteEntry(ctx context.Context, entityID string) error

	// ListAreas returns every area ordered by name.
	ListAreas(ctx context.Context) ([]Area, error)

	// UpsertArea inserts or replaces an area, keeping its CreatedAt.
	UpsertArea(ctx context.Context, a *Area) error

	// DeleteArea returns ErrAreaNotFound if the area does not exist.
	// Entries in the area are left without one.
	DeleteArea(ctx context.Context, areaID string) error
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

const entryColumns = `entity_id, platform, name, original_name, icon, original_icon,
	device_class, unit_of_measurement, area_id, device_id, disabled, created_at, updated_at`

// GetEntry retrieves one registry entry.
func (r *SQLiteRepository) GetEntry(ctx context.Context, entityID string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entity_registry WHERE entity_id = ?", entityID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying entity %s: %w", entityID, err)
	}
	return e, nil
}

// ListEntries retrieves every registry entry.
func (r *SQLiteRepository) ListEntries(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entity_registry ORDER BY entity_id")
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return entries, nil
}

// UpsertEntry inserts or replaces a registry entry.
func (r *SQLiteRepository) UpsertEntry(ctx context.Context, e *Entry) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO entity_registry (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			platform = excluded.platform,
			name = excluded.name,
			original_name = excluded.original_name,
			icon = excluded.icon,
			original_icon = excluded.original_icon,
			device_class = excluded.device_class,
			unit_of_measurement = excluded.unit_of_measurement,
			area_id = excluded.area_id,
			device_id = excluded.device_id,
			disabled = excluded.disabled,
			updated_at = excluded.updated_at`,
		e.EntityID,
		e.Platform,
		nullableString(e.Name),
		nullableString(e.OriginalName),
		nullableString(e.Icon),
		nullableString(e.OriginalIcon),
		nullableString(e.DeviceClass),
		nullableString(e.UnitOfMeasurement),
		nullableString(e.AreaID),
		nullableString(e.DeviceID),
		boolToInt(e.Disabled),
		e.CreatedAt.Format(time.RFC3339),
		e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting entity %s: %w", e.EntityID, err)
	}
	return nil
}

// DeleteEntry removes a registry entry.
func (r *SQLiteRepository) DeleteEntry(ctx context.Context, entityID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM entity_registry WHERE entity_id = ?", entityID)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	} else if n == 0 {
		return ErrEntityNotFound
	}
	return nil
}

// ListAreas retrieves every area.
func (r *SQLiteRepository) ListAreas(ctx context.Context) ([]Area, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT area_id, name, created_at, updated_at FROM areas ORDER BY name, area_id")
	if err != nil {
		return nil, fmt.Errorf("querying areas: %w", err)
	}
	defer rows.Close()

	var areas []Area
	for rows.Next() {
		var a Area
		var createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning area: %w", err)
		}
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)
		areas = append(areas, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating areas: %w", err)
	}
	return areas, nil
}

// UpsertArea inserts or replaces an area.
func (r *SQLiteRepository) UpsertArea(ctx context.Context, a *Area) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO areas (area_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(area_id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at`,
		a.ID, a.Name,
		a.CreatedAt.Format(time.RFC3339),
		a.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting area %s: %w", a.ID, err)
	}
	return nil
}

// DeleteArea removes an area and unassigns its entries in one transaction.
func (r *SQLiteRepository) DeleteArea(ctx context.Context, areaID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	result, err := tx.ExecContext(ctx, "DELETE FROM areas WHERE area_id = ?", areaID)
	if err != nil {
		return fmt.Errorf("deleting area: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	} else if n == 0 {
		return ErrAreaNotFound
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE entity_registry SET area_id = NULL WHERE area_id = ?", areaID); err != nil {
		return fmt.Errorf("unassigning area entities: %w", err)
	}

	return tx.Commit()
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(scanner rowScanner) (*Entry, error) {
	var e Entry
	var name, originalName, icon, originalIcon sql.NullString
	var deviceClass, unit, areaID, deviceID sql.NullString
	var disabled int
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&e.EntityID, &e.Platform, &name, &originalName, &icon, &originalIcon,
		&deviceClass, &unit, &areaID, &deviceID, &disabled, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	e.Name = name.String
	e.OriginalName = originalName.String
	e.Icon = icon.String
	e.OriginalIcon = originalIcon.String
	e.DeviceClass = deviceClass.String
	e.UnitOfMeasurement = unit.String
	e.AreaID = areaID.String
	e.DeviceID = deviceID.String
	e.Disabled = disabled != 0
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// nullableString stores "" as NULL.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTime ignores errors; the format is written by this package.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // format is controlled
	return t
}
