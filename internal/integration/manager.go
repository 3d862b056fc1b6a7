package integration

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/couch-control/internal/bridge"
	"github.com/nerrad567/couch-control/internal/configentry"
	"github.com/nerrad567/couch-control/internal/entity"
	"github.com/nerrad567/couch-control/internal/events"
	"github.com/nerrad567/couch-control/internal/schema"
	"github.com/nerrad567/couch-control/internal/selection"
	"github.com/nerrad567/couch-control/internal/service"
)

// Identification of the integration.
const (
	Domain  = "couch_control"
	Name    = "Couch Control Entity Filter"
	Version = "1.0.0"
)

// lifecycleTimeout bounds setup and teardown triggered by entry changes.
const lifecycleTimeout = 30 * time.Second

// Logger defines the logging interface used by the Manager.
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

// StateSource is the live state machine. entity.StateMachine satisfies it.
type StateSource interface {
	Has(entityID string) bool
	Get(entityID string) (*entity.State, bool)
	Bus() *events.Bus[entity.ChangeEvent]
}

// Deps holds the dependencies of the Manager.
type Deps struct {
	// Registry resolves ids for validation. Required.
	Registry selection.Resolver

	// States resolves ids and supplies the change bus. Required.
	States StateSource

	// Entries stores config entries. Required.
	Entries *configentry.Manager

	// Services receives the couch_control services. Required.
	Services *service.Registry

	// Backend persists selection records. Required.
	Backend selection.Backend

	// Schema validates service call data. Defaults to schema.MustNew().
	Schema *schema.Validator

	// Publisher, when set, receives each entry's committed selection as a
	// retained message.
	Publisher RetainedPublisher

	// NativeScope configures the subscription bridge.
	NativeScope bool

	Logger Logger
}

// Manager runs one Instance per couch_control config entry.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Setup, Teardown and Reload
//     are serialised.
type Manager struct {
	registry  selection.Resolver
	states    StateSource
	entries   *configentry.Manager
	services  *service.Registry
	backend   selection.Backend
	schema    *schema.Validator
	publisher RetainedPublisher
	logger    Logger

	bridge     *bridge.Bridge
	sinkBridge *bridge.Bridge

	lifecycle sync.Mutex
	mu        sync.RWMutex
	instances map[string]*Instance

	changes *events.Subscription[configentry.Change]
}

// New creates a manager. Call Start to set up stored entries.
func New(deps Deps) (*Manager, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("entity registry is required")
	case deps.States == nil:
		return nil, fmt.Errorf("state machine is required")
	case deps.Entries == nil:
		return nil, fmt.Errorf("config entry manager is required")
	case deps.Services == nil:
		return nil, fmt.Errorf("service registry is required")
	case deps.Backend == nil:
		return nil, fmt.Errorf("selection backend is required")
	}

	m := &Manager{
		registry:  deps.Registry,
		states:    deps.States,
		entries:   deps.Entries,
		services:  deps.Services,
		backend:   deps.Backend,
		schema:    deps.Schema,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		instances: make(map[string]*Instance),
	}
	if m.schema == nil {
		m.schema = schema.MustNew()
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}

	m.bridge = bridge.New(m.states, m.Selector,
		bridge.WithNativeScope(deps.NativeScope), bridge.WithLogger(m.logger))
	// Sinks live for the whole process, so they always follow the live
	// selection.
	m.sinkBridge = bridge.New(m.states, m.Selector, bridge.WithLogger(m.logger))
	return m, nil
}

// Start sets up every stored couch_control entry and follows entry
// creation and removal from then on. A failing entry is logged and
// skipped.
func (m *Manager) Start(ctx context.Context) error {
	m.changes = m.entries.Changes().Subscribe(m.onEntryChange)

	entries := m.entries.List(Domain)
	for i := range entries {
		if err := m.Setup(ctx, entries[i]); err != nil {
			m.logger.Error("config entry setup failed", "entry_id", entries[i].ID, "error", err)
		}
	}
	m.logger.Info("integration started", "domain", Domain, "instances", m.Len())
	return nil
}

// Close tears down every instance and detaches all subscribers.
func (m *Manager) Close(ctx context.Context) error {
	m.changes.Dispose()
	m.bridge.Close()
	m.sinkBridge.Close()

	var errs []error
	for _, inst := range m.Instances() {
		if err := m.Teardown(ctx, inst.EntryID()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) onEntryChange(c configentry.Change) {
	if c.Entry.Domain != Domain {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()

	switch c.Kind {
	case configentry.ChangeAdded:
		if err := m.Setup(ctx, c.Entry); err != nil {
			m.logger.Error("config entry setup failed", "entry_id", c.Entry.ID, "error", err)
		}
	case configentry.ChangeRemoved:
		if err := m.Remove(ctx, c.Entry.ID); err != nil {
			m.logger.Warn("config entry removal incomplete", "entry_id", c.Entry.ID, "error", err)
		}
	}
}

// Setup starts an instance for entry.
//
// A missing, unreadable or mismatched record never fails setup: the
// selection starts empty. When no record exists, the legacy single-instance
// record and then entry.Data are imported. A second Setup of the same entry
// only warns.
//
// Returns:
//   - error: wraps ErrSetup when service registration fails; nothing
//     registered by this call is left behind
func (m *Manager) Setup(ctx context.Context, entry configentry.Entry) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if _, exists := m.lookup(entry.ID); exists {
		m.logger.Warn("config entry already set up", "entry_id", entry.ID)
		return nil
	}

	store := selection.NewStore(m.backend, selection.StorageKey(entry.ID))
	store.SetLogger(m.logger)
	entities := m.loadSelection(ctx, store, entry)

	inst := &Instance{
		entry: *entry.Clone(),
		cache: selection.NewCache(),
		store: store,
	}
	inst.cache.Replace(entities)
	inst.filter = selection.NewFilter(inst.cache)
	inst.writer = selection.NewWriter(store)
	inst.writer.SetLogger(m.logger)

	var sched selection.Scheduler = inst.writer
	if m.publisher != nil {
		sched = &publishingScheduler{next: inst.writer, publisher: m.publisher, entryID: entry.ID, logger: m.logger}
	}
	inst.mutator = selection.NewMutator(inst.cache, m.registry, m.states, sched)
	inst.mutator.SetLogger(m.logger)

	if m.Len() == 0 {
		if err := m.registerServices(); err != nil {
			inst.writer.Close(ctx) //nolint:errcheck // nothing scheduled yet
			return fmt.Errorf("%w: %s: %w", ErrSetup, entry.ID, err)
		}
	}

	inst.listener = m.entries.OnUpdate(entry.ID, func(updated configentry.Entry) {
		rctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
		defer cancel()
		if err := m.Reload(rctx, updated); err != nil {
			m.logger.Error("config entry reload failed", "entry_id", updated.ID, "error", err)
		}
	})

	m.mu.Lock()
	m.instances[entry.ID] = inst
	m.mu.Unlock()

	if m.publisher != nil {
		publishSelection(m.publisher, entry.ID, inst.cache.Get(), m.logger)
	}

	m.logger.Info("config entry set up", "entry_id", entry.ID, "entities", inst.cache.Len())
	return nil
}

// loadSelection reads the stored selection, importing older data when
// there is no record for the entry yet.
func (m *Manager) loadSelection(ctx context.Context, store *selection.Store, entry configentry.Entry) []string {
	rec, err := store.Read(ctx)
	switch {
	case err == nil:
		return rec.Entities
	case !errors.Is(err, selection.ErrNotFound):
		m.logger.Warn("ignoring stored selection", "entry_id", entry.ID, "error", err)
		return []string{}
	}

	legacy := selection.NewStore(m.backend, selection.StorageKey(""))
	legacy.SetLogger(m.logger)
	if entities, ok := legacy.Load(ctx); ok {
		m.logger.Info("importing legacy selection", "entry_id", entry.ID, "entities", len(entities))
		m.importSelection(ctx, store, entities)
		if err := legacy.Delete(ctx); err != nil {
			m.logger.Warn("removing legacy selection failed", "error", err)
		}
		return entities
	}

	if len(entry.Data.Entities) > 0 {
		m.logger.Info("importing selection from config entry data", "entry_id", entry.ID, "entities", len(entry.Data.Entities))
		m.importSelection(ctx, store, entry.Data.Entities)
		return slices.Clone(entry.Data.Entities)
	}
	return []string{}
}

func (m *Manager) importSelection(ctx context.Context, store *selection.Store, entities []string) {
	if err := store.Save(ctx, entities); err != nil {
		m.logger.Warn("saving imported selection failed", "key", store.Key(), "error", err)
	}
}

// Teardown stops an instance: its listener is disposed, the pending write
// flushed and the cache cleared. Services are removed with the last
// instance. Tearing down an unknown entry only warns.
func (m *Manager) Teardown(ctx context.Context, entryID string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	inst, ok := m.instances[entryID]
	if ok {
		delete(m.instances, entryID)
	}
	remaining := len(m.instances)
	m.mu.Unlock()

	if !ok {
		m.logger.Warn("config entry not set up", "entry_id", entryID)
		return nil
	}

	inst.listener.Dispose()
	if remaining == 0 {
		m.removeServices()
	}

	err := inst.writer.Close(ctx)
	if err != nil {
		m.logger.Warn("flushing selection failed", "entry_id", entryID, "error", err)
	}
	inst.cache.Clear()

	m.logger.Info("config entry torn down", "entry_id", entryID)
	return err
}

// Reload tears an entry down and sets it up again from entry.
func (m *Manager) Reload(ctx context.Context, entry configentry.Entry) error {
	if err := m.Teardown(ctx, entry.ID); err != nil {
		m.logger.Warn("teardown before reload incomplete", "entry_id", entry.ID, "error", err)
	}
	return m.Setup(ctx, entry)
}

// Remove tears an entry down and deletes its stored selection.
func (m *Manager) Remove(ctx context.Context, entryID string) error {
	teardownErr := m.Teardown(ctx, entryID)

	store := selection.NewStore(m.backend, selection.StorageKey(entryID))
	err := store.Delete(ctx)
	if m.publisher != nil {
		clearSelection(m.publisher, entryID, m.logger)
	}
	return errors.Join(teardownErr, err)
}

func (m *Manager) lookup(entryID string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[entryID]
	return inst, ok
}

// Lookup returns the instance for entryID, or the oldest instance when
// entryID is empty.
//
// Returns:
//   - ErrNotConfigured when no instance runs
//   - ErrEntryNotLoaded when entryID names no running instance
func (m *Manager) Lookup(entryID string) (*Instance, error) {
	if entryID != "" {
		inst, ok := m.lookup(entryID)
		if !ok {
			if m.Len() == 0 {
				return nil, ErrNotConfigured
			}
			return nil, fmt.Errorf("%w: %s", ErrEntryNotLoaded, entryID)
		}
		return inst, nil
	}

	all := m.Instances()
	if len(all) == 0 {
		return nil, ErrNotConfigured
	}
	return all[0], nil
}

// Instances returns the running instances, oldest entry first.
func (m *Manager) Instances() []*Instance {
	m.mu.RLock()
	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Instance) int {
		if c := a.entry.CreatedAt.Compare(b.entry.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.entry.ID, b.entry.ID)
	})
	return out
}

// Len returns the number of running instances.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}

// Configured reports whether at least one instance runs.
func (m *Manager) Configured() bool {
	return m.Len() > 0
}

// Selector returns the union of every running instance's selection.
func (m *Manager) Selector() selection.Selector {
	insts := m.Instances()
	members := make([]selection.Selector, len(insts))
	for i, inst := range insts {
		members[i] = inst.filter
	}
	return selection.Union(members...)
}

// Bridge returns the subscription bridge over the union selection.
func (m *Manager) Bridge() *bridge.Bridge {
	return m.bridge
}

// States returns the live state source.
func (m *Manager) States() StateSource {
	return m.states
}

// AttachSink subscribes a long-lived consumer of filtered changes. Sinks
// always follow the live selection regardless of the native scope setting.
func (m *Manager) AttachSink(name string, s bridge.Subscriber) *bridge.Subscription {
	sub := m.sinkBridge.Subscribe(s)
	m.logger.Info("sink attached", "sink", name, "subscription", sub.ID())
	return sub
}

// Validate splits ids by the mutation validation rule.
func (m *Manager) Validate(ids []string) (valid, invalid []string) {
	return selection.Validate(ids, m.registry, m.states)
}

// Selection returns an entry's current selection, or its stored one when
// the entry is not running.
func (m *Manager) Selection(entryID string) []string {
	if inst, ok := m.lookup(entryID); ok {
		return inst.Selection()
	}
	store := selection.NewStore(m.backend, selection.StorageKey(entryID))
	store.SetLogger(m.logger)
	entities, _ := store.Load(context.Background())
	return entities
}

// Commit replaces an entry's selection through its Mutator and waits for
// the write. When the entry is not running the validated ids are saved
// directly.
func (m *Manager) Commit(ctx context.Context, entryID string, ids []string) error {
	if inst, ok := m.lookup(entryID); ok {
		inst.mutator.Replace(ids)
		return inst.writer.Flush(ctx)
	}

	valid, invalid := m.Validate(ids)
	if len(invalid) > 0 {
		m.logger.Warn("dropped unresolvable entities", "entry_id", entryID, "invalid", invalid)
	}
	store := selection.NewStore(m.backend, selection.StorageKey(entryID))
	return store.Save(ctx, valid)
}
