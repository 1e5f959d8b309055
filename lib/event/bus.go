// Package event implements the publish/subscribe hub wallets use to notify each other of balance updates, new
// transactions and configuration changes. Topics are structured values rendered to the string wire format expected by
// external listeners.
//
// Handlers registered with Subscribe run synchronously in subscription order while the bus is locked, so they must not
// emit or subscribe themselves. Handlers that do (ie. anything touching a wallet) are registered with SubscribeAsync.
package event

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// Handler receives the events of a topic.
type Handler func(Event)

// Bus is an event hub.
type Bus struct {
	bus evbus.Bus
}

var (
	defaultBus  *Bus
	defaultOnce sync.Once
)

// New returns a new, empty bus.
func New() *Bus {
	return &Bus{bus: evbus.New()}
}

// Default returns the process wide bus. It is created on first use and never torn down.
func Default() *Bus {
	defaultOnce.Do(func() { defaultBus = New() })
	return defaultBus
}

// Subscribe registers a synchronous handler for the topic.
func (b *Bus) Subscribe(t Topic, h Handler) error {
	return b.bus.Subscribe(t.String(), h)
}

// SubscribeAsync registers a handler run on its own goroutine per event. The emitter does not wait for it and no
// ordering is kept between events.
func (b *Bus) SubscribeAsync(t Topic, h Handler) error {
	return b.bus.SubscribeAsync(t.String(), h, false)
}

// Unsubscribe removes a handler previously registered for the topic.
func (b *Bus) Unsubscribe(t Topic, h Handler) error {
	return b.bus.Unsubscribe(t.String(), h)
}

// HasSubscribers reports whether anything listens to the topic.
func (b *Bus) HasSubscribers(t Topic) bool {
	return b.bus.HasCallback(t.String())
}

// Emit publishes the event on its own topic.
func (b *Bus) Emit(e Event) {
	b.bus.Publish(e.Topic().String(), e)
}

// WaitAsync blocks until every asynchronous handler has returned.
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}
