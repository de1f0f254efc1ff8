package zones

import (
	"errors"
	"sync"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/geometry"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
)

// ErrUnknownZone is returned when a caller names a zone outside the fixed set.
var ErrUnknownZone = errors.New("zones: unknown zone name")

// Editor is the interaction state machine for one open editor session.
//
// A zone is drawn by selecting it and clicking twice. The second click commits
// the geometry into the set immediately, but the transient points stay visible
// until the next selection or clear so the operator can see the line they just
// drew. Re-selecting a zone that already has committed geometry starts a fresh
// construction without erasing the committed line; the old geometry is only
// replaced once two new points land.
//
// All mutation goes through the editor lock; call order is commit order. The
// render loop reads through Snapshot every tick, so it always observes the
// freshest geometry without holding any state of its own.
type Editor struct {
	mu        sync.Mutex
	platform  string
	set       Set
	selected  string
	transient []geometry.Point
}

// NewEditor creates an editor session over a loaded zone set.
func NewEditor(platform string, set Set) *Editor {
	if set == nil {
		set = NewSet()
	}
	return &Editor{platform: platform, set: set}
}

// Platform returns the platform this session edits.
func (e *Editor) Platform() string {
	return e.platform
}

// Select makes name the current drawing target and drops any transient points.
// Committed geometry for the zone is left untouched.
func (e *Editor) Select(name string) error {
	if !IsFixedName(name) {
		return ErrUnknownZone
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = name
	e.transient = e.transient[:0]
	logger.Debug("Editor", "[%s] zone %s selected", e.platform, name)
	return nil
}

// Click records a canonical point for the selected zone. The click is ignored
// when no zone is selected or when two transient points are already held. On
// the second point the zone geometry commits into the set; the transient
// points are intentionally kept.
//
// Returns true when the click mutated editor state, and true as the second
// value when the click completed a gate.
func (e *Editor) Click(p geometry.Point) (accepted, committed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.selected == "" || len(e.transient) >= 2 {
		return false, false
	}

	e.transient = append(e.transient, p)
	if len(e.transient) < 2 {
		return true, false
	}

	e.set[e.selected] = &Zone{P1: e.transient[0], P2: e.transient[1]}
	logger.Info("Editor", "[%s] zone %s committed: (%d,%d)-(%d,%d)",
		e.platform, e.selected, e.transient[0].X, e.transient[0].Y, e.transient[1].X, e.transient[1].Y)
	return true, true
}

// ClearZone removes committed geometry for name. When name is the selected
// zone the transient points are dropped as well.
func (e *Editor) ClearZone(name string) error {
	if !IsFixedName(name) {
		return ErrUnknownZone
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.set[name] = nil
	if e.selected == name {
		e.transient = e.transient[:0]
	}
	logger.Info("Editor", "[%s] zone %s cleared", e.platform, name)
	return nil
}

// ClearAll removes every zone. Confirmation is the caller's responsibility;
// the transport layer refuses the request without an explicit confirm flag.
func (e *Editor) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, name := range Names {
		e.set[name] = nil
	}
	e.transient = e.transient[:0]
	logger.Info("Editor", "[%s] all zones cleared", e.platform)
}

// ZoneSet returns a deep copy of the committed geometry, safe to hand to the
// persistence bridge or the notification bus.
func (e *Editor) ZoneSet() Set {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set.Clone()
}

// Snapshot is the read model the overlay compositor consumes each tick.
type Snapshot struct {
	Set       Set
	Selected  string
	Transient []geometry.Point
}

// Snapshot returns a copy of the full editor state.
func (e *Editor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	tr := make([]geometry.Point, len(e.transient))
	copy(tr, e.transient)
	return Snapshot{
		Set:       e.set.Clone(),
		Selected:  e.selected,
		Transient: tr,
	}
}
