package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/couch-control/internal/infrastructure/config"
)

// openTestDB opens a WAL database in a fresh temp dir and closes it with the test.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "couchcontrol.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	return db
}

func TestOpen_CreatesNestedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "couch", "couchcontrol.db")

	db, err := Open(context.Background(), config.DatabaseConfig{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	// Force a write so the file certainly exists.
	if _, err := db.ExecContext(context.Background(), "CREATE TABLE probe (id INTEGER)"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file: %v", err)
	}
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(context.Background(), config.DatabaseConfig{Path: MemoryPath})
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	if _, err := db.ExecContext(context.Background(), "CREATE TABLE m (id INTEGER)"); err != nil {
		t.Fatalf("ExecContext() error = %v", err)
	}
	// Only one pooled connection, so the table is visible to the next query.
	if !tableExists(t, db, "m") {
		t.Error("table m not visible")
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		memory  bool
		want    []string
		notWant string
	}{
		{"wal file", config.DatabaseConfig{Path: "/var/lib/cc.db", WALMode: true, BusyTimeout: 5},
			false, []string{"file:/var/lib/cc.db?", "_busy_timeout=5000", "_journal_mode=WAL", "_foreign_keys=on"}, ""},
		{"memory ignores wal", config.DatabaseConfig{Path: MemoryPath, WALMode: true},
			true, []string{"file::memory:?", "_busy_timeout=0"}, "_journal_mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dsn(tt.cfg, tt.memory)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("dsn() = %q, missing %q", got, w)
				}
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Errorf("dsn() = %q, should not contain %q", got, tt.notWant)
			}
		})
	}
}

func TestHealthCheckAndClose(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if got := db.DB.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close should fail")
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() with nil handle error = %v", err)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE areas (id TEXT PRIMARY KEY);
		CREATE TABLE entities (id TEXT PRIMARY KEY, area_id TEXT REFERENCES areas(id));
	`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO entities VALUES ('sensor.temp', 'nowhere')"); err == nil {
		t.Error("insert with dangling area_id should fail")
	}
}

func TestBeginTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "CREATE TABLE selection (entity_id TEXT)"); err != nil {
		t.Fatal(err)
	}

	count := func() int {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM selection").Scan(&n); err != nil {
			t.Fatal(err)
		}
		return n
	}

	for _, commit := range []bool{false, true} {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO selection VALUES ('light.kitchen')"); err != nil {
			t.Fatal(err)
		}
		if commit {
			err = tx.Commit()
		} else {
			err = tx.Rollback()
		}
		if err != nil {
			t.Fatalf("finish (commit=%v) error = %v", commit, err)
		}
	}

	if got := count(); got != 1 {
		t.Errorf("rows = %d, want 1 (rollback then commit)", got)
	}
}
