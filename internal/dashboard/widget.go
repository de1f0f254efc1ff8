// Package dashboard is the reconciliation layer behind the KPI cards, the
// time-series chart and the platform grid. Each widget independently merges
// three inputs: the initial REST fetch, refetches triggered by filter changes
// or zones:updated notifications, and real-time push messages.
package dashboard

import (
	"sync"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/backend"
)

// Snapshot is a widget payload. Empty drives the non-regression merge.
type Snapshot interface {
	Empty() bool
}

// Widget holds the last known good snapshot of one dashboard card.
//
// Merge rule, applied uniformly: a new snapshot replaces the old one only if
// the new one is non-empty, or the old one was already empty. A platform
// briefly absent from a listing must never wipe a card that has valid data.
type Widget[T Snapshot] struct {
	mu    sync.Mutex
	value T
	has   bool
}

// Apply offers a new snapshot and reports whether it was accepted.
func (w *Widget[T]) Apply(next T) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.has && next.Empty() && !w.value.Empty() {
		return false
	}
	w.value = next
	w.has = true
	return true
}

// Value returns the current snapshot, if any was ever accepted.
func (w *Widget[T]) Value() (T, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value, w.has
}

// Grid is the platform-grid snapshot.
type Grid struct {
	Platforms []backend.PlatformSnapshot `json:"platforms"`
}

// Empty reports whether the grid lists no platforms.
func (g Grid) Empty() bool {
	return len(g.Platforms) == 0
}

// Scope is the dashboard time-window filter. Real-time push only overrides
// widget state under a live scope; for historical ranges REST data is the
// only authority.
type Scope struct {
	Live bool   `json:"live"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}
