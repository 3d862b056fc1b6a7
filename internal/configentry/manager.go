package configentry

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/couch-control/internal/events"
)

// Logger defines the logging interface used by the Manager and Flows.
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

// Manager provides config entries with caching and change notification.
//
// Every successful write publishes a Change on the bus, keyed by entry ID,
// after the repository has been updated and the lock released. Listeners
// may therefore call back into the Manager.
//
// All public methods are thread-safe.
type Manager struct {
	repo    Repository
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	bus     *events.Bus[Change]
	now     func() time.Time
	logger  Logger
}

// NewManager creates a new config entry manager.
func NewManager(repo Repository) *Manager {
	m := &Manager{
		repo:    repo,
		entries: make(map[string]*Entry),
		bus:     events.NewBus(func(c Change) string { return c.Entry.ID }),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  noopLogger{},
	}
	m.bus.SetPanicHandler(func(c Change, r any) {
		m.logger.Error("config entry listener panicked", "entry_id", c.Entry.ID, "kind", c.Kind, "panic", r)
	})
	return m
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Load reads every entry from the repository into the cache.
// This should be called on application startup.
func (m *Manager) Load(ctx context.Context) error {
	entries, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading config entries: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*Entry, len(entries))
	m.order = make([]string, 0, len(entries))
	for i := range entries {
		m.entries[entries[i].ID] = entries[i].Clone()
		m.order = append(m.order, entries[i].ID)
	}

	m.logger.Info("config entries loaded", "count", len(entries))
	return nil
}

// Changes returns the bus entry changes are published on.
func (m *Manager) Changes() *events.Bus[Change] {
	return m.bus
}

// OnUpdate registers listener for updates of one entry. Dispose the
// returned subscription to stop.
func (m *Manager) OnUpdate(entryID string, listener func(Entry)) *events.Subscription[Change] {
	return m.bus.SubscribeKeys([]string{entryID}, func(c Change) {
		if c.Kind == ChangeUpdated {
			listener(c.Entry)
		}
	})
}

// Create persists a new entry for domain and publishes ChangeAdded.
//
// Parameters:
//   - domain: integration domain, e.g. "couch_control"
//   - title: human-readable title
//   - data: initial payload; copied
//
// Returns:
//   - *Entry: a copy of the stored entry with its generated ID
//   - error: ErrInvalidEntry, or a repository error
func (m *Manager) Create(ctx context.Context, domain, title string, data EntryData) (*Entry, error) {
	if strings.TrimSpace(domain) == "" {
		return nil, fmt.Errorf("%w: domain is required", ErrInvalidEntry)
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidEntry)
	}

	now := m.now()
	e := &Entry{
		ID:        uuid.NewString(),
		Domain:    domain,
		Title:     title,
		Version:   EntryVersion,
		Data:      data.Clone(),
		Options:   EntryData{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	if err := m.repo.Save(ctx, e); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.entries[e.ID] = e
	m.order = append(m.order, e.ID)
	out := *e.Clone()
	m.mu.Unlock()

	m.logger.Info("config entry created", "entry_id", e.ID, "domain", domain)
	m.bus.Publish(Change{Kind: ChangeAdded, Entry: out})
	return out.Clone(), nil
}

// Get returns a copy of one entry.
func (m *Manager) Get(id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return e.Clone(), nil
}

// List returns copies of the entries for domain, oldest first. An empty
// domain lists every entry.
func (m *Manager) List(domain string) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.order))
	for _, id := range m.order {
		e := m.entries[id]
		if domain != "" && e.Domain != domain {
			continue
		}
		out = append(out, *e.Clone())
	}
	return out
}

// UpdateOptions replaces an entry's options and publishes ChangeUpdated.
func (m *Manager) UpdateOptions(ctx context.Context, id string, options EntryData) (*Entry, error) {
	m.mu.Lock()
	current, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrEntryNotFound
	}

	updated := current.Clone()
	updated.Options = options.Clone()
	updated.UpdatedAt = m.now()
	if err := m.repo.Save(ctx, updated); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.entries[id] = updated
	out := *updated.Clone()
	m.mu.Unlock()

	m.logger.Info("config entry updated", "entry_id", id, "entities", len(options.Entities))
	m.bus.Publish(Change{Kind: ChangeUpdated, Entry: out})
	return out.Clone(), nil
}

// Delete removes an entry and publishes ChangeRemoved.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	current, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return ErrEntryNotFound
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		m.mu.Unlock()
		return err
	}
	delete(m.entries, id)
	m.order = slices.DeleteFunc(m.order, func(v string) bool { return v == id })
	out := *current
	m.mu.Unlock()

	m.logger.Info("config entry deleted", "entry_id", id)
	m.bus.Publish(Change{Kind: ChangeRemoved, Entry: out})
	return nil
}
