// Package events is a minimal in-process pub/sub used to fan
// notifications (a server finished RCON auth) into the scheduler.
package events

import (
	"log/slog"
	"sync"
)

// TopicServerAuthenticated fires after a server's RCON session
// authenticates.
const TopicServerAuthenticated = "server.authenticated"

// ServerAuthenticated is the payload of TopicServerAuthenticated.
type ServerAuthenticated struct {
	ServerID int
}

// Handler receives published payloads. Handlers run on their own
// goroutine; a slow handler never blocks the publisher.
type Handler func(payload any)

// Bus is a topic-keyed subscriber list.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]Handler)}
}

// Subscribe registers a handler and returns its unsubscribe func.
// Unsubscribing twice is harmless.
func (b *Bus) Subscribe(topic string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.subs[topic][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish delivers payload to every subscriber of topic.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	if len(handlers) == 0 {
		slog.Debug("event with no subscribers", "topic", topic)
	}
	for _, h := range handlers {
		go h(payload)
	}
}
