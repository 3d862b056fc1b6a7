// Package events provides a small typed in-process event bus.
//
// Handlers are registered either globally (every event) or for a fixed
// set of keys, and each registration returns a Subscription whose Dispose
// method is the only way to stop delivery.
package events

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Handler receives one event.
type Handler[T any] func(T)

// PanicHandler is called when a handler panics. The panic does not reach
// the publisher and does not stop delivery to later handlers.
type PanicHandler[T any] func(event T, recovered any)

// Bus delivers events of type T synchronously, in publish order, to every
// matching subscription in registration order.
//
// Thread Safety:
//   - Subscribe, Publish and Dispose are safe for concurrent use.
//   - Handlers run on the publishing goroutine.
type Bus[T any] struct {
	key func(T) string

	mu     sync.RWMutex
	nextID uint64
	global map[uint64]*Subscription[T]
	keyed  map[string]map[uint64]*Subscription[T]

	onPanic PanicHandler[T]
}

// NewBus creates a bus. key extracts the routing key used by SubscribeKeys.
func NewBus[T any](key func(T) string) *Bus[T] {
	return &Bus[T]{
		key:    key,
		global: make(map[uint64]*Subscription[T]),
		keyed:  make(map[string]map[uint64]*Subscription[T]),
	}
}

// SetPanicHandler installs a callback for handler panics.
func (b *Bus[T]) SetPanicHandler(h PanicHandler[T]) {
	b.mu.Lock()
	b.onPanic = h
	b.mu.Unlock()
}

// Subscribe registers handler for every published event.
func (b *Bus[T]) Subscribe(handler Handler[T]) *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := b.newSubscription(handler, nil)
	b.global[sub.id] = sub
	return sub
}

// SubscribeKeys registers handler for events whose key is in keys. The key
// set is fixed at registration; an empty set receives nothing.
func (b *Bus[T]) SubscribeKeys(keys []string, handler Handler[T]) *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	unique := make([]string, 0, len(keys))
	for _, k := range keys {
		if !slices.Contains(unique, k) {
			unique = append(unique, k)
		}
	}

	sub := b.newSubscription(handler, unique)
	for _, k := range unique {
		set, ok := b.keyed[k]
		if !ok {
			set = make(map[uint64]*Subscription[T])
			b.keyed[k] = set
		}
		set[sub.id] = sub
	}
	return sub
}

func (b *Bus[T]) newSubscription(handler Handler[T], keys []string) *Subscription[T] {
	if handler == nil {
		panic("events: nil handler")
	}
	b.nextID++
	sub := &Subscription[T]{id: b.nextID, bus: b, handler: handler, keys: keys}
	sub.active.Store(true)
	return sub
}

// Publish delivers event to every matching subscription and returns the
// number of handlers invoked.
func (b *Bus[T]) Publish(event T) int {
	targets, onPanic := b.targets(event)

	delivered := 0
	for _, sub := range targets {
		// Disposed after the snapshot was taken.
		if !sub.active.Load() {
			continue
		}
		b.invoke(sub, event, onPanic)
		delivered++
	}
	return delivered
}

func (b *Bus[T]) targets(event T) ([]*Subscription[T], PanicHandler[T]) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keyed := b.keyed[b.key(event)]
	targets := make([]*Subscription[T], 0, len(b.global)+len(keyed))
	for _, sub := range b.global {
		targets = append(targets, sub)
	}
	for _, sub := range keyed {
		targets = append(targets, sub)
	}
	slices.SortFunc(targets, func(a, c *Subscription[T]) int {
		switch {
		case a.id < c.id:
			return -1
		case a.id > c.id:
			return 1
		}
		return 0
	})
	return targets, b.onPanic
}

func (b *Bus[T]) invoke(sub *Subscription[T], event T, onPanic PanicHandler[T]) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(event, r)
		}
	}()
	sub.handler(event)
}

// Len returns the number of live subscriptions.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.global)
	seen := make(map[uint64]struct{})
	for _, set := range b.keyed {
		for id := range set {
			seen[id] = struct{}{}
		}
	}
	return n + len(seen)
}

func (b *Bus[T]) remove(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.keys == nil {
		delete(b.global, sub.id)
		return
	}
	for _, k := range sub.keys {
		if set, ok := b.keyed[k]; ok {
			delete(set, sub.id)
			if len(set) == 0 {
				delete(b.keyed, k)
			}
		}
	}
}

// Subscription is the disposable handle returned by Subscribe and SubscribeKeys.
type Subscription[T any] struct {
	id      uint64
	bus     *Bus[T]
	handler Handler[T]
	keys    []string
	active  atomic.Bool
}

// Dispose stops delivery. An event already being delivered to this
// handler completes. Calling Dispose more than once is a no-op.
func (s *Subscription[T]) Dispose() {
	if s == nil || !s.active.CompareAndSwap(true, false) {
		return
	}
	s.bus.remove(s)
}

// Active reports whether the subscription still receives events.
func (s *Subscription[T]) Active() bool {
	return s != nil && s.active.Load()
}

// Keys returns the key scope, or nil for a global subscription.
func (s *Subscription[T]) Keys() []string {
	return slices.Clone(s.keys)
}

func (s *Subscription[T]) String() string {
	if s.keys == nil {
		return fmt.Sprintf("subscription#%d(global)", s.id)
	}
	return fmt.Sprintf("subscription#%d(%d keys)", s.id, len(s.keys))
}
