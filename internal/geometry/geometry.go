// Package geometry defines the canonical coordinate space shared by the zone
// editor, the overlay compositor and the counting pipeline.
//
// All zone geometry is authored, stored and transmitted in a fixed 1020x600
// logical resolution. The counting pipeline resizes every frame to exactly
// this size before running its line-crossing checks, so a gate drawn on any
// display size lands on the same pixels the counter sees.
package geometry

import "math"

// Canonical resolution.
const (
	CanonicalWidth  = 1020
	CanonicalHeight = 600
)

// Point is a coordinate pair in canonical space.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is the on-screen bounding rectangle of a canvas, in display pixels.
// A zero-size rect means the canvas is not mounted yet.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the rect can be used for coordinate mapping.
func (r Rect) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// ToCanonical maps a pointer position in screen space into canonical space by
// linear scaling against the canvas display rect. The second return value is
// false when the rect is unusable (canvas not mounted); callers must ignore
// the click in that case.
func ToCanonical(screenX, screenY float64, rect Rect) (Point, bool) {
	if !rect.Valid() {
		return Point{}, false
	}
	x := int(math.Round((screenX - rect.Left) / rect.Width * CanonicalWidth))
	y := int(math.Round((screenY - rect.Top) / rect.Height * CanonicalHeight))
	return Point{
		X: clamp(x, 0, CanonicalWidth),
		Y: clamp(y, 0, CanonicalHeight),
	}, true
}

// ToScreen maps a canonical point onto a canvas display rect.
func ToScreen(p Point, rect Rect) (float64, float64) {
	x := rect.Left + float64(p.X)/CanonicalWidth*rect.Width
	y := rect.Top + float64(p.Y)/CanonicalHeight*rect.Height
	return x, y
}

// Scale maps a canonical point onto a canvas of the given pixel dimensions.
// This is the integer variant the compositor uses.
func Scale(p Point, width, height int) (int, int) {
	x := int(math.Round(float64(p.X) / CanonicalWidth * float64(width)))
	y := int(math.Round(float64(p.Y) / CanonicalHeight * float64(height)))
	return x, y
}

// Midpoint returns the midpoint of the segment p1-p2.
func Midpoint(p1, p2 Point) Point {
	return Point{X: (p1.X + p2.X) / 2, Y: (p1.Y + p2.Y) / 2}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
