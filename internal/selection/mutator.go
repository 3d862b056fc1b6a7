package selection

import (
	"slices"
	"sync"
)

// Resolver reports whether an entity ID is known. entity.Registry and
// entity.StateMachine both satisfy it.
type Resolver interface {
	Has(entityID string) bool
}

// Scheduler accepts a selection to persist asynchronously.
type Scheduler interface {
	Schedule(entities []string)
}

// Result reports the outcome of one mutation.
type Result struct {
	// Entities is the committed selection.
	Entities []string `json:"entities"`

	// Invalid lists submitted ids that did not resolve, in submission order.
	Invalid []string `json:"invalid_entities,omitempty"`

	// Changed is true when the selection differs from before the call.
	Changed bool `json:"changed"`
}

// Mutator is the only write path to a selection.
//
// An id is valid if the registry knows it or it has a live state. Invalid
// ids are dropped and reported, never fatal. Every mutation updates the
// Cache synchronously and then schedules a save.
//
// Thread Safety:
//   - Mutations are serialised; at most one is in flight per Mutator.
type Mutator struct {
	mu        sync.Mutex
	cache     *Cache
	registry  Resolver
	states    Resolver
	scheduler Scheduler
	logger    Logger
}

// NewMutator creates a mutator. registry and states may be nil, in which
// case they resolve nothing.
func NewMutator(cache *Cache, registry, states Resolver, scheduler Scheduler) *Mutator {
	return &Mutator{
		cache:     cache,
		registry:  registry,
		states:    states,
		scheduler: scheduler,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the mutator.
func (m *Mutator) SetLogger(logger Logger) {
	m.logger = logger
}

// Resolves reports whether id passes validation.
func (m *Mutator) Resolves(id string) bool {
	return Resolves(id, m.registry, m.states)
}

// Validate splits ids into resolvable and unresolvable, each de-duplicated
// and in submission order.
func (m *Mutator) Validate(ids []string) (valid, invalid []string) {
	return Validate(ids, m.registry, m.states)
}

// Resolves reports whether any non-nil resolver knows id.
func Resolves(id string, resolvers ...Resolver) bool {
	if id == "" {
		return false
	}
	for _, r := range resolvers {
		if r != nil && r.Has(id) {
			return true
		}
	}
	return false
}

// Validate splits ids into those some resolver knows and those none do.
// Both lists are de-duplicated and keep submission order.
func Validate(ids []string, resolvers ...Resolver) (valid, invalid []string) {
	valid = make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if Resolves(id, resolvers...) {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}
	return valid, invalid
}

// Replace validates ids and replaces the selection with the valid ones.
func (m *Mutator) Replace(ids []string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	valid, invalid := m.Validate(ids)
	before := m.cache.Get()
	m.cache.Replace(valid)
	res := Result{Entities: m.cache.Get(), Invalid: invalid}
	res.Changed = !slices.Equal(before, res.Entities)
	m.commit(res, "replace")
	return res
}

// Add validates id and appends it if absent.
func (m *Mutator) Add(id string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Resolves(id) {
		return Result{Entities: m.cache.Get(), Invalid: []string{id}}
	}
	res := Result{Changed: m.cache.Add(id)}
	res.Entities = m.cache.Get()
	m.commit(res, "add")
	return res
}

// Remove drops id if present. Removal is not validated, so ids whose
// entity has gone away can still be deselected.
func (m *Mutator) Remove(id string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := Result{Changed: m.cache.Remove(id)}
	res.Entities = m.cache.Get()
	m.commit(res, "remove")
	return res
}

// Clear empties the selection.
func (m *Mutator) Clear() Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := Result{Changed: m.cache.Len() > 0}
	m.cache.Clear()
	res.Entities = m.cache.Get()
	m.commit(res, "clear")
	return res
}

// commit schedules persistence. Replace and Clear always save; Add and
// Remove save only on change.
func (m *Mutator) commit(res Result, op string) {
	if !res.Changed && op != "replace" && op != "clear" {
		return
	}
	if m.scheduler != nil {
		m.scheduler.Schedule(res.Entities)
	}
	if len(res.Invalid) > 0 {
		m.logger.Warn("dropped unresolvable entities", "op", op, "invalid", res.Invalid)
	}
	m.logger.Info("selection updated", "op", op, "count", len(res.Entities), "changed", res.Changed)
}
