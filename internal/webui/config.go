// Package webui is the HTTP surface for the operator browser: the zone editor
// session endpoints, the composited MJPEG preview, the dashboard snapshot
// endpoints and the websocket push channel.
package webui

import "github.com/cylinder-vision/cargo-counting/dashboard-server/internal/geometry"

// Config holds the webui server settings.
type Config struct {
	Addr         string // listen address, e.g. ":8090"
	CanvasWidth  int    // compositor canvas size in pixels
	CanvasHeight int
	TargetFPS    int // render loop rate for editor sessions
}

// DefaultConfig returns the default webui configuration. The canvas matches
// the canonical coordinate space one to one, so editor pixels are canonical
// units.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8090",
		CanvasWidth:  geometry.CanonicalWidth,
		CanvasHeight: geometry.CanonicalHeight,
		TargetFPS:    30,
	}
}
