package geometry

import "image/color"

// palette holds the colors a zone can render in. Assignment is derived from
// the zone name alone, so a zone keeps its color across reloads without the
// color ever being persisted.
var palette = []color.RGBA{
	{R: 239, G: 68, B: 68, A: 255},  // red
	{R: 34, G: 197, B: 94, A: 255},  // green
	{R: 59, G: 130, B: 246, A: 255}, // blue
	{R: 245, G: 158, B: 11, A: 255}, // amber
	{R: 168, G: 85, B: 247, A: 255}, // purple
	{R: 20, G: 184, B: 166, A: 255}, // teal
}

// ZoneColor returns the deterministic palette color for a zone name. The hash
// is a plain byte sum, so it is independent of rune order.
func ZoneColor(name string) color.RGBA {
	sum := 0
	for i := 0; i < len(name); i++ {
		sum += int(name[i])
	}
	return palette[sum%len(palette)]
}
