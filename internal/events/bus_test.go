package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	Key   string
	Value int
}

func newTestBus() *Bus[testEvent] {
	return NewBus(func(e testEvent) string { return e.Key })
}

func TestBus_GlobalSubscription(t *testing.T) {
	bus := newTestBus()

	var got []testEvent
	sub := bus.Subscribe(func(e testEvent) { got = append(got, e) })
	defer sub.Dispose()

	bus.Publish(testEvent{Key: "a", Value: 1})
	bus.Publish(testEvent{Key: "b", Value: 2})

	assert.Equal(t, []testEvent{{"a", 1}, {"b", 2}}, got)
}

func TestBus_KeyedSubscription(t *testing.T) {
	bus := newTestBus()

	var got []string
	sub := bus.SubscribeKeys([]string{"a", "a", "c"}, func(e testEvent) { got = append(got, e.Key) })
	defer sub.Dispose()

	bus.Publish(testEvent{Key: "a"})
	bus.Publish(testEvent{Key: "b"})
	bus.Publish(testEvent{Key: "c"})

	assert.Equal(t, []string{"a", "c"}, got)
	assert.Equal(t, []string{"a", "c"}, sub.Keys())
}

func TestBus_EmptyKeysReceivesNothing(t *testing.T) {
	bus := newTestBus()

	calls := 0
	bus.SubscribeKeys(nil, func(testEvent) { calls++ })
	assert.Equal(t, 0, bus.Publish(testEvent{Key: "a"}))
	assert.Equal(t, 0, calls)
}

func TestBus_RegistrationOrder(t *testing.T) {
	bus := newTestBus()

	var order []string
	bus.Subscribe(func(testEvent) { order = append(order, "global-1") })
	bus.SubscribeKeys([]string{"k"}, func(testEvent) { order = append(order, "keyed-2") })
	bus.Subscribe(func(testEvent) { order = append(order, "global-3") })

	n := bus.Publish(testEvent{Key: "k"})

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"global-1", "keyed-2", "global-3"}, order)
}

func TestSubscription_Dispose(t *testing.T) {
	bus := newTestBus()

	calls := 0
	global := bus.Subscribe(func(testEvent) { calls++ })
	keyed := bus.SubscribeKeys([]string{"a"}, func(testEvent) { calls++ })
	require.Equal(t, 2, bus.Len())

	global.Dispose()
	keyed.Dispose()
	keyed.Dispose() // idempotent

	assert.False(t, global.Active())
	assert.False(t, keyed.Active())
	assert.Equal(t, 0, bus.Len())
	assert.Equal(t, 0, bus.Publish(testEvent{Key: "a"}))
	assert.Equal(t, 0, calls)
}

func TestSubscription_DisposeNil(t *testing.T) {
	var sub *Subscription[testEvent]
	sub.Dispose()
	assert.False(t, sub.Active())
}

func TestSubscription_DisposeDuringDelivery(t *testing.T) {
	bus := newTestBus()

	var second *Subscription[testEvent]
	secondCalls := 0
	bus.Subscribe(func(testEvent) { second.Dispose() })
	second = bus.Subscribe(func(testEvent) { secondCalls++ })

	bus.Publish(testEvent{Key: "a"})
	assert.Equal(t, 0, secondCalls, "disposed before dispatch reached it")
}

func TestBus_PanicIsolation(t *testing.T) {
	bus := newTestBus()

	var recovered []any
	bus.SetPanicHandler(func(_ testEvent, r any) { recovered = append(recovered, r) })

	after := 0
	bus.Subscribe(func(testEvent) { panic("boom") })
	bus.Subscribe(func(testEvent) { after++ })

	require.NotPanics(t, func() { bus.Publish(testEvent{Key: "a"}) })
	assert.Equal(t, 1, after)
	assert.Equal(t, []any{"boom"}, recovered)
}

func TestBus_NilHandlerPanics(t *testing.T) {
	bus := newTestBus()
	assert.Panics(t, func() { bus.Subscribe(nil) })
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	bus := newTestBus()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := bus.Subscribe(func(testEvent) {})
			sub.Dispose()
		}()
		go func() {
			defer wg.Done()
			bus.Publish(testEvent{Key: "x"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, bus.Len())
}
