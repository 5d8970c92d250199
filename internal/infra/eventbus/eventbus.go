// Package eventbus: in-memory publish/subscribe event bus.
// Used to fan vision replies and errors out to SSE/WebSocket clients and
// the MQTT emitter.
//
// Design:
//   - Buffered Go channel per subscriber (buffer=100).
//   - Publish is non-blocking: drops the event if a subscriber's buffer is full.
//   - Subscribe returns a read-only channel; the caller owns the consumption loop.
//   - Unsubscribe closes the channel, so long-lived consumers (HTTP streams)
//     can detach when their client goes away.
//   - No persistence: events are fire-and-forget.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// Event is a single published message.
type Event struct {
	Topic   string
	Payload any
}

// EventBus is the interface for publishing and subscribing to topics.
type EventBus interface {
	Publish(topic string, payload any)
	Subscribe(topic string) <-chan Event
	Unsubscribe(topic string, ch <-chan Event)
}

const defaultBufferSize = 100

// Bus is the in-memory implementation of EventBus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	dropped     atomic.Uint64
}

// New returns a new in-memory Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe registers a new subscriber for topic and returns a read-only channel.
// The caller must consume the channel or its events are dropped.
func (b *Bus) Subscribe(topic string) <-chan Event {
	ch := make(chan Event, defaultBufferSize)
	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes ch from topic and closes it. Unknown channels are ignored.
func (b *Bus) Unsubscribe(topic string, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[topic]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[topic] = append(subs[:i:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish sends an Event to all subscribers of topic.
// If a subscriber's buffer is full the event is dropped (non-blocking).
func (b *Bus) Publish(topic string, payload any) {
	evt := Event{Topic: topic, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were dropped on full buffers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
