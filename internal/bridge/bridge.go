package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/nerrad567/couch-control/internal/entity"
	"github.com/nerrad567/couch-control/internal/events"
	"github.com/nerrad567/couch-control/internal/selection"
)

// StateSource is the live state the bridge reads and listens to.
// entity.StateMachine satisfies it.
type StateSource interface {
	Get(entityID string) (*entity.State, bool)
	Bus() *events.Bus[entity.ChangeEvent]
}

// SelectorFunc returns the selection to filter against. It is called for
// every event, so it may return a different selector over time.
type SelectorFunc func() selection.Selector

// Subscriber receives the initial snapshot and then the event stream.
// Initial is always called exactly once, before any Event call.
type Subscriber interface {
	Initial(states []entity.State)
	Event(ev Event)
}

// Funcs adapts plain functions to Subscriber. Nil fields are skipped.
type Funcs struct {
	OnInitial func(states []entity.State)
	OnEvent   func(ev Event)
}

// Initial implements Subscriber.
func (f Funcs) Initial(states []entity.State) {
	if f.OnInitial != nil {
		f.OnInitial(states)
	}
}

// Event implements Subscriber.
func (f Funcs) Event(ev Event) {
	if f.OnEvent != nil {
		f.OnEvent(ev)
	}
}

// Logger defines the logging interface used by the Bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures a Bridge.
type Option func(*Bridge)

// WithNativeScope registers subscriptions only for the ids selected at
// subscribe time.
func WithNativeScope(enabled bool) Option {
	return func(b *Bridge) { b.nativeScope = enabled }
}

// WithLogger sets the bridge logger.
func WithLogger(logger Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// Bridge attaches subscribers to the change bus through the selection.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Bridge struct {
	states      StateSource
	selector    SelectorFunc
	nativeScope bool
	logger      Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
}

// New creates a bridge.
func New(states StateSource, selector SelectorFunc, opts ...Option) *Bridge {
	b := &Bridge{
		states:   states,
		selector: selector,
		logger:   noopLogger{},
		subs:     make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe attaches s and returns its handle.
//
// The listener is registered before the snapshot is taken and held back
// until s.Initial returns, so no change between the two is lost. A change
// that lands during the snapshot may be delivered even though the
// snapshot already reflects it.
func (b *Bridge) Subscribe(s Subscriber) *Subscription {
	sel := b.selector()
	ids := sel.Selection()

	sub := &Subscription{bridge: b}
	sub.gate.Lock()

	handler := func(e entity.ChangeEvent) {
		sub.gate.Lock()
		defer sub.gate.Unlock()
		if sub.disposed.Load() {
			return
		}
		if !b.selector().IsSelected(e.EntityID) {
			return
		}
		s.Event(NewEvent(e))
	}

	if b.nativeScope {
		sub.listener = b.states.Bus().SubscribeKeys(ids, handler)
		sub.scope = ids
	} else {
		sub.listener = b.states.Bus().Subscribe(handler)
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	b.mu.Unlock()

	initial := selection.ProjectLookup(sel, b.states.Get)
	s.Initial(initial)
	sub.gate.Unlock()

	b.logger.Info("subscriber attached", "subscription", sub.id, "entities", len(ids), "states", len(initial), "native_scope", b.nativeScope)
	return sub
}

// Active returns the number of live subscriptions.
func (b *Bridge) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close disposes every subscription.
func (b *Bridge) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Dispose()
	}
}

func (b *Bridge) release(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
	b.logger.Info("subscriber detached", "subscription", sub.id)
}

// Subscription is the disposable handle returned by Subscribe.
type Subscription struct {
	id       uint64
	bridge   *Bridge
	listener *events.Subscription[entity.ChangeEvent]
	scope    []string

	gate     sync.Mutex
	disposed atomic.Bool
}

// ID returns the bridge-local subscription number.
func (s *Subscription) ID() uint64 {
	return s.id
}

// Scope returns the native registration keys, or nil for a global
// registration.
func (s *Subscription) Scope() []string {
	return s.scope
}

// Active reports whether the subscription still delivers events.
func (s *Subscription) Active() bool {
	return s != nil && !s.disposed.Load()
}

// Dispose stops delivery and releases the bus listener. It is idempotent.
// An event already being forwarded when Dispose is called still completes.
func (s *Subscription) Dispose() {
	if s == nil || !s.disposed.CompareAndSwap(false, true) {
		return
	}
	s.listener.Dispose()
	s.bridge.release(s)
}
