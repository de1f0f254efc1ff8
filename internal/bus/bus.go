// Package bus is the process-wide zones:updated notification channel. It
// decouples the short-lived editor session from the long-lived dashboard
// widgets: the editor publishes after every successful save or per-zone
// clear, and any mounted widget that cares about zone-scoped counts reacts.
//
// Delivery is fire-and-forget with per-subscriber buffers; a slow subscriber
// drops events rather than blocking the publisher. No ordering is guaranteed
// between a notification and a subscriber's own in-flight refetch, so
// subscribers must treat an event as a hint to refetch unless the zone
// payload is present.
package bus

import (
	"sync"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/metrics"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/zones"
)

// Event announces that zone geometry for a platform changed. Zones carries
// the new geometry when the publisher has it; a nil Zones means "refetch".
type Event struct {
	Platform string
	Zones    zones.Set
}

// Bus fans Events out to subscribers.
type Bus struct {
	mu      sync.Mutex
	clients map[int]chan Event
	nextID  int
	metrics *metrics.Metrics
}

// New creates an empty bus. m may be nil.
func New(m *metrics.Metrics) *Bus {
	return &Bus{
		clients: make(map[int]chan Event),
		metrics: m,
	}
}

// Subscribe registers a listener and returns its id and receive channel.
// Callers must Unsubscribe when they unmount to avoid leaks.
func (b *Bus) Subscribe() (int, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 4)
	b.clients[id] = ch

	logger.Debug("Bus", "subscriber #%d registered (total: %d)", id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		logger.Debug("Bus", "subscriber #%d removed (remaining: %d)", id, len(b.clients))
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.BusEventsPublished.Add(1)
	}

	for id, ch := range b.clients {
		select {
		case ch <- ev:
		default:
			logger.Debug("Bus", "subscriber #%d full, event dropped", id)
		}
	}
}

// SubscriberCount returns how many listeners are registered.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
