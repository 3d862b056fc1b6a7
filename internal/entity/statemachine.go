package entity

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/couch-control/internal/events"
)

// StateMachine holds the live state of every entity and publishes a
// ChangeEvent for each observable change.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Events are published in the order the writes were applied.
//   - Bus handlers run on the writing goroutine and must not write to the
//     state machine.
type StateMachine struct {
	mu     sync.RWMutex
	states map[string]*State

	// pubMu orders apply+publish so subscribers never see events out of order.
	pubMu sync.Mutex

	bus    *events.Bus[ChangeEvent]
	now    func() time.Time
	logger Logger
}

// NewStateMachine creates an empty state machine with its own change bus.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		states: make(map[string]*State),
		bus:    events.NewBus(func(e ChangeEvent) string { return e.EntityID }),
		now:    func() time.Time { return time.Now().UTC() },
		logger: noopLogger{},
	}
	sm.bus.SetPanicHandler(func(e ChangeEvent, recovered any) {
		sm.logger.Error("state change handler panicked", "entity_id", e.EntityID, "panic", recovered)
	})
	return sm
}

// SetLogger sets the logger for the state machine.
func (sm *StateMachine) SetLogger(logger Logger) {
	sm.logger = logger
}

// Bus returns the change bus. Events are keyed by entity ID.
func (sm *StateMachine) Bus() *events.Bus[ChangeEvent] {
	return sm.bus
}

// Get returns a deep copy of the entity's current state.
func (sm *StateMachine) Get(entityID string) (*State, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s, ok := sm.states[entityID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Has reports whether the entity currently has a live state.
func (sm *StateMachine) Has(entityID string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.states[entityID]
	return ok
}

// All returns deep copies of every state sorted by entity ID.
func (sm *StateMachine) All() []State {
	sm.mu.RLock()
	out := make([]State, 0, len(sm.states))
	for _, s := range sm.states {
		out = append(out, *s.Clone())
	}
	sm.mu.RUnlock()

	slices.SortFunc(out, func(a, b State) int {
		return strings.Compare(a.EntityID, b.EntityID)
	})
	return out
}

// Len returns the number of entities with live state.
func (sm *StateMachine) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.states)
}

// Set writes an entity's state and attributes.
//
// LastChanged advances only when the state string changes; LastUpdated
// advances on any change. A write identical to the current state is
// ignored and publishes nothing.
//
// Parameters:
//   - entityID: "<domain>.<object_id>"
//   - state: new state string
//   - attrs: attributes; nil is stored as an empty map
//   - origin: OriginLocal or OriginRemote
//
// Returns:
//   - bool: true if an event was published
//   - error: ErrInvalidEntityID or ErrInvalidState
func (sm *StateMachine) Set(entityID, state string, attrs map[string]any, origin string) (bool, error) {
	if err := validateStateWrite(entityID, state, attrs); err != nil {
		return false, err
	}

	sm.pubMu.Lock()
	defer sm.pubMu.Unlock()

	now := sm.now()
	sm.mu.Lock()
	old, exists := sm.states[entityID]
	if exists && old.State == state && attributesEqual(old.Attributes, attrs) {
		sm.mu.Unlock()
		return false, nil
	}

	next := &State{
		EntityID:    entityID,
		State:       state,
		Attributes:  deepCopyMap(attrs),
		LastChanged: now,
		LastUpdated: now,
	}
	if exists && old.State == state {
		next.LastChanged = old.LastChanged
	}
	sm.states[entityID] = next

	event := ChangeEvent{
		EntityID:  entityID,
		NewState:  next.Clone(),
		Origin:    origin,
		TimeFired: now,
	}
	if exists {
		event.OldState = old.Clone()
	}
	sm.mu.Unlock()

	sm.bus.Publish(event)
	return true, nil
}

// Remove deletes an entity's live state and publishes an event with a nil
// NewState. Returns false if the entity had no state.
func (sm *StateMachine) Remove(entityID, origin string) bool {
	sm.pubMu.Lock()
	defer sm.pubMu.Unlock()

	sm.mu.Lock()
	old, exists := sm.states[entityID]
	if !exists {
		sm.mu.Unlock()
		return false
	}
	delete(sm.states, entityID)
	sm.mu.Unlock()

	sm.bus.Publish(ChangeEvent{
		EntityID:  entityID,
		OldState:  old.Clone(),
		Origin:    origin,
		TimeFired: sm.now(),
	})
	return true
}
