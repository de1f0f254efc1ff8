// Package zones holds the in-memory zone geometry model and the interactive
// editor state machine that mutates it.
package zones

import "github.com/cylinder-vision/cargo-counting/dashboard-server/internal/geometry"

// Names is the fixed, ordered set of zone identifiers. Every Set carries an
// entry for each of these names and nothing else.
var Names = []string{"A", "B", "C"}

// Zone is a counting gate: a line segment between two canonical points. A nil
// *Zone means the zone is not configured. There is no persisted single-point
// state; partial geometry only exists transiently inside the editor.
type Zone struct {
	P1 geometry.Point
	P2 geometry.Point
}

// Set maps every fixed zone name to its geometry.
type Set map[string]*Zone

// NewSet returns a Set with every fixed zone undefined.
func NewSet() Set {
	s := make(Set, len(Names))
	for _, name := range Names {
		s[name] = nil
	}
	return s
}

// IsFixedName reports whether name belongs to the fixed zone-name set.
func IsFixedName(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for name, z := range s {
		if z == nil {
			out[name] = nil
			continue
		}
		cp := *z
		out[name] = &cp
	}
	return out
}

// DefinedCount returns how many zones carry committed geometry.
func (s Set) DefinedCount() int {
	n := 0
	for _, z := range s {
		if z != nil {
			n++
		}
	}
	return n
}

// Equal reports whether two sets carry identical geometry.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for name, z := range s {
		o, ok := other[name]
		if !ok {
			return false
		}
		if (z == nil) != (o == nil) {
			return false
		}
		if z != nil && *z != *o {
			return false
		}
	}
	return true
}
