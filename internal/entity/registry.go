package entity

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the Registry and StateMachine.
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

// Registry provides entity metadata with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by the write methods. Has and Get never block on the database once the
// cache is loaded, which lets request handlers validate ids cheaply.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	entries map[string]*Entry
	areas   map[string]*Area
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new entity registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		entries: make(map[string]*Entry),
		areas:   make(map[string]*Area),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all entries and areas from the repository.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	entries, err := r.repo.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}
	areas, err := r.repo.ListAreas(ctx)
	if err != nil {
		return fmt.Errorf("loading areas: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.entries = make(map[string]*Entry, len(entries))
	for i := range entries {
		r.entries[entries[i].EntityID] = entries[i].Clone()
	}
	r.areas = make(map[string]*Area, len(areas))
	for i := range areas {
		a := areas[i]
		r.areas[a.ID] = &a
	}

	r.logger.Info("entity registry cache refreshed", "entities", len(entries), "areas", len(areas))
	return nil
}

// Has reports whether the registry knows the entity ID.
func (r *Registry) Has(entityID string) bool {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	_, ok := r.entries[entityID]
	return ok
}

// Get returns a copy of the entry, or ErrEntityNotFound.
func (r *Registry) Get(ctx context.Context, entityID string) (*Entry, error) {
	r.cacheMu.RLock()
	cached, ok := r.entries[entityID]
	r.cacheMu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	// Fall back to repository for rows written by another process.
	e, err := r.repo.GetEntry(ctx, entityID)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.entries[entityID] = e.Clone()
	r.cacheMu.Unlock()
	return e, nil
}

// Lookup returns a copy of the cached entry without touching the repository.
func (r *Registry) Lookup(entityID string) (*Entry, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	e, ok := r.entries[entityID]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// List returns copies of every entry sorted by entity ID.
func (r *Registry) List() []Entry {
	r.cacheMu.RLock()
	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, *e)
	}
	r.cacheMu.RUnlock()

	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.EntityID, b.EntityID)
	})
	return entries
}

// Count returns the number of cached entries.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.entries)
}

// Upsert validates and persists an entry, then updates the cache.
func (r *Registry) Upsert(ctx context.Context, e *Entry) error {
	if err := ValidateEntry(e); err != nil {
		return err
	}

	r.cacheMu.RLock()
	if existing, ok := r.entries[e.EntityID]; ok && e.CreatedAt.IsZero() {
		e.CreatedAt = existing.CreatedAt
	}
	r.cacheMu.RUnlock()

	if err := r.repo.UpsertEntry(ctx, e); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.entries[e.EntityID] = e.Clone()
	r.cacheMu.Unlock()

	r.logger.Debug("entity registered", "entity_id", e.EntityID)
	return nil
}

// Delete removes an entry.
func (r *Registry) Delete(ctx context.Context, entityID string) error {
	if err := r.repo.DeleteEntry(ctx, entityID); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.entries, entityID)
	r.cacheMu.Unlock()

	r.logger.Info("entity removed from registry", "entity_id", entityID)
	return nil
}

// ListAreas returns copies of every area sorted by name.
func (r *Registry) ListAreas() []Area {
	r.cacheMu.RLock()
	areas := make([]Area, 0, len(r.areas))
	for _, a := range r.areas {
		areas = append(areas, *a)
	}
	r.cacheMu.RUnlock()

	slices.SortFunc(areas, func(a, b Area) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return areas
}

// GetArea returns a copy of the area, or ErrAreaNotFound.
func (r *Registry) GetArea(areaID string) (*Area, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	a, ok := r.areas[areaID]
	if !ok {
		return nil, ErrAreaNotFound
	}
	c := *a
	return &c, nil
}

// UpsertArea validates and persists an area. An empty ID is derived from
// the name.
func (r *Registry) UpsertArea(ctx context.Context, a *Area) error {
	if a != nil && a.ID == "" {
		a.ID = Slugify(a.Name)
	}
	if err := ValidateArea(a); err != nil {
		return err
	}

	r.cacheMu.RLock()
	if existing, ok := r.areas[a.ID]; ok && a.CreatedAt.IsZero() {
		a.CreatedAt = existing.CreatedAt
	}
	r.cacheMu.RUnlock()

	if err := r.repo.UpsertArea(ctx, a); err != nil {
		return err
	}

	c := *a
	r.cacheMu.Lock()
	r.areas[a.ID] = &c
	r.cacheMu.Unlock()

	r.logger.Debug("area registered", "area_id", a.ID)
	return nil
}

// DeleteArea removes an area and clears it from cached entries.
func (r *Registry) DeleteArea(ctx context.Context, areaID string) error {
	if err := r.repo.DeleteArea(ctx, areaID); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.areas, areaID)
	for id, e := range r.entries {
		if e.AreaID == areaID {
			updated := e.Clone()
			updated.AreaID = ""
			r.entries[id] = updated
		}
	}
	r.cacheMu.Unlock()

	r.logger.Info("area removed", "area_id", areaID)
	return nil
}
