package overlay

import (
	"sync"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/metrics"
)

// Broadcaster fans composited JPEG frames out to the connected MJPEG viewers.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
	metrics *metrics.Metrics
}

// NewBroadcaster creates an empty broadcaster. m may be nil.
func NewBroadcaster(m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		clients: make(map[int]chan []byte),
		metrics: m,
	}
}

// Subscribe adds a viewer and returns a channel for receiving frames.
func (b *Broadcaster) Subscribe() (int, <-chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan []byte, 2) // Buffer 2 frames to avoid blocking
	b.clients[id] = ch

	if b.metrics != nil {
		b.metrics.StreamClients.Store(uint64(len(b.clients)))
	}
	logger.Debug("Overlay", "viewer #%d subscribed (total: %d)", id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a viewer.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		if b.metrics != nil {
			b.metrics.StreamClients.Store(uint64(len(b.clients)))
		}
		logger.Debug("Overlay", "viewer #%d unsubscribed (remaining: %d)", id, len(b.clients))
	}
}

// Broadcast sends a frame to every viewer. A viewer too slow to keep up skips
// this frame rather than stalling the render loop.
func (b *Broadcaster) Broadcast(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.clients {
		select {
		case ch <- data:
		default:
			if b.metrics != nil {
				b.metrics.FramesDropped.Add(1)
			}
		}
	}
}

// ClientCount returns the number of connected viewers.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every viewer.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
	if b.metrics != nil {
		b.metrics.StreamClients.Store(0)
	}
}
