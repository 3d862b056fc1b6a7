package configentry

import (
	"context"
	"errors"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(NewSQLiteRepository(setupTestDB(t)))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return m
}

func TestManager_CreateGetList(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	var added []Change
	m.Changes().Subscribe(func(c Change) { added = append(added, c) })

	data := EntryData{Entities: []string{"light.kitchen"}}
	e, err := m.Create(ctx, "couch_control", DefaultTitle, data)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.ID == "" || e.Version != EntryVersion {
		t.Errorf("Create() = %+v", e)
	}

	// Input is copied.
	data.Entities[0] = "mutated"
	got, err := m.Get(e.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Data.Entities[0] != "light.kitchen" {
		t.Errorf("Data.Entities = %v", got.Data.Entities)
	}

	// Output is a copy.
	got.Data.Entities[0] = "mutated"
	again, _ := m.Get(e.ID)
	if again.Data.Entities[0] != "light.kitchen" {
		t.Error("Get() returned internal state")
	}

	if len(added) != 1 || added[0].Kind != ChangeAdded || added[0].Entry.ID != e.ID {
		t.Errorf("changes = %+v", added)
	}

	if _, err := m.Create(ctx, "other", "Other", EntryData{}); err != nil {
		t.Fatalf("Create(other) error = %v", err)
	}
	if n := len(m.List("couch_control")); n != 1 {
		t.Errorf("List(couch_control) = %d, want 1", n)
	}
	if n := len(m.List("")); n != 2 {
		t.Errorf("List(all) = %d, want 2", n)
	}
}

func TestManager_CreateValidation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Create(ctx, "", "t", EntryData{}); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Create(no domain) error = %v", err)
	}
	if _, err := m.Create(ctx, "couch_control", " ", EntryData{}); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Create(no title) error = %v", err)
	}
}

func TestManager_OnUpdate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, "couch_control", "A", EntryData{})
	b, _ := m.Create(ctx, "couch_control", "B", EntryData{})

	var seen []Entry
	sub := m.OnUpdate(a.ID, func(e Entry) { seen = append(seen, e) })

	if _, err := m.UpdateOptions(ctx, a.ID, EntryData{Entities: []string{"light.kitchen"}}); err != nil {
		t.Fatalf("UpdateOptions() error = %v", err)
	}
	if _, err := m.UpdateOptions(ctx, b.ID, EntryData{Entities: []string{"light.hall"}}); err != nil {
		t.Fatalf("UpdateOptions(b) error = %v", err)
	}

	if len(seen) != 1 || seen[0].Options.Entities[0] != "light.kitchen" {
		t.Fatalf("listener saw %+v", seen)
	}

	sub.Dispose()
	m.UpdateOptions(ctx, a.ID, EntryData{}) //nolint:errcheck
	if len(seen) != 1 {
		t.Errorf("listener called after Dispose")
	}

	if _, err := m.UpdateOptions(ctx, "missing", EntryData{}); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("UpdateOptions(missing) error = %v", err)
	}
}

func TestManager_DeleteAndReload(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	m := NewManager(NewSQLiteRepository(db))
	a, _ := m.Create(ctx, "couch_control", "A", EntryData{})
	b, _ := m.Create(ctx, "couch_control", "B", EntryData{})

	var removed []string
	m.Changes().Subscribe(func(c Change) {
		if c.Kind == ChangeRemoved {
			removed = append(removed, c.Entry.ID)
		}
	})

	if err := m.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := m.Delete(ctx, a.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Delete(again) error = %v", err)
	}
	if len(removed) != 1 || removed[0] != a.ID {
		t.Errorf("removed = %v", removed)
	}

	// A fresh manager sees the persisted state.
	fresh := NewManager(NewSQLiteRepository(db))
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	list := fresh.List("couch_control")
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("List() after reload = %+v", list)
	}
}

func TestManager_ListenerPanicIsolated(t *testing.T) {
	m := newTestManager(t)
	m.Changes().Subscribe(func(Change) { panic("boom") })

	if _, err := m.Create(context.Background(), "couch_control", "A", EntryData{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}
