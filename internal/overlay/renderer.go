// Package overlay composites the live stream frame with the zone vector
// overlay: committed gates, the in-progress construction, and labels.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	"image/jpeg"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/geometry"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/zones"
)

var (
	background = color.RGBA{R: 17, G: 24, B: 39, A: 255}
	labelText  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	labelShade = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	statusText = color.RGBA{R: 156, G: 163, B: 175, A: 255}
)

const (
	gateThickness   = 3
	markerRadius    = 6
	dashSegmentLen  = 8
	labelLiftPixels = 10
	statusBannerY   = 16
)

// Renderer draws overlay frames onto a reusable canvas. It is owned by a
// single render loop; the canvas is never shared.
type Renderer struct {
	width  int
	height int
	canvas *image.RGBA
}

// NewRenderer creates a renderer with the given canvas pixel dimensions.
func NewRenderer(width, height int) *Renderer {
	return &Renderer{
		width:  width,
		height: height,
		canvas: image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

// Compose renders one overlay frame: background fill, the latest stream frame
// scaled to the canvas bounds (skipped while the feed is down), every
// committed zone as a colored labeled line, and the transient construction
// points with a dashed preview. While live is false a connecting banner is
// drawn over the frame area so the operator sees the feed state instead of a
// silently frozen or empty image. The returned image is reused across calls.
func (r *Renderer) Compose(frame image.Image, live bool, snap zones.Snapshot) *image.RGBA {
	stddraw.Draw(r.canvas, r.canvas.Bounds(), image.NewUniform(background), image.Point{}, stddraw.Src)

	if frame != nil {
		b := frame.Bounds()
		if b.Dx() > 0 && b.Dy() > 0 {
			xdraw.ApproxBiLinear.Scale(r.canvas, r.canvas.Bounds(), frame, b, xdraw.Src, nil)
		}
	}

	if !live {
		r.statusBanner("connecting...")
	}

	for _, name := range zones.Names {
		z := snap.Set[name]
		if z == nil {
			continue
		}
		col := geometry.ZoneColor(name)
		x1, y1 := geometry.Scale(z.P1, r.width, r.height)
		x2, y2 := geometry.Scale(z.P2, r.width, r.height)
		r.line(x1, y1, x2, y2, col, false)

		mid := geometry.Midpoint(z.P1, z.P2)
		mx, my := geometry.Scale(mid, r.width, r.height)
		r.labelCentered(mx, my-labelLiftPixels, "Zone "+name)
	}

	if snap.Selected != "" && len(snap.Transient) > 0 {
		col := geometry.ZoneColor(snap.Selected)
		if len(snap.Transient) == 2 {
			x1, y1 := geometry.Scale(snap.Transient[0], r.width, r.height)
			x2, y2 := geometry.Scale(snap.Transient[1], r.width, r.height)
			r.line(x1, y1, x2, y2, col, true)
		}
		for i, p := range snap.Transient {
			x, y := geometry.Scale(p, r.width, r.height)
			r.disc(x, y, markerRadius, col)
			r.labelCentered(x, y-markerRadius-labelLiftPixels, fmt.Sprintf("%d", i+1))
		}
	}

	return r.canvas
}

// EncodeJPEG serializes a composed canvas for MJPEG delivery.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// line walks the segment parametrically and stamps a square brush at each
// step. Dashed lines skip alternating runs of dashSegmentLen steps.
func (r *Renderer) line(x1, y1, x2, y2 int, col color.RGBA, dashed bool) {
	length := math.Hypot(float64(x2-x1), float64(y2-y1))
	steps := int(length)
	if steps == 0 {
		r.brush(x1, y1, col)
		return
	}
	for i := 0; i <= steps; i++ {
		if dashed && (i/dashSegmentLen)%2 == 1 {
			continue
		}
		t := float64(i) / float64(steps)
		x := int(math.Round(float64(x1) + t*float64(x2-x1)))
		y := int(math.Round(float64(y1) + t*float64(y2-y1)))
		r.brush(x, y, col)
	}
}

func (r *Renderer) brush(x, y int, col color.RGBA) {
	half := gateThickness / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			r.set(x+dx, y+dy, col)
		}
	}
}

func (r *Renderer) disc(cx, cy, radius int, col color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				r.set(cx+dx, cy+dy, col)
			}
		}
	}
}

func (r *Renderer) set(x, y int, col color.RGBA) {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return
	}
	r.canvas.SetRGBA(x, y, col)
}

// statusBanner draws a stream-state line across the top of the canvas.
func (r *Renderer) statusBanner(text string) {
	face := basicfont.Face7x13
	d := font.Drawer{
		Dst:  r.canvas,
		Src:  image.NewUniform(statusText),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(8), Y: fixed.I(statusBannerY)},
	}
	d.DrawString(text)
}

// labelCentered draws text centered on (x, y) with a one-pixel shadow so it
// stays readable over bright frames.
func (r *Renderer) labelCentered(x, y int, text string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Round()

	drawAt := func(ox, oy int, c color.RGBA) {
		d := font.Drawer{
			Dst:  r.canvas,
			Src:  image.NewUniform(c),
			Face: face,
			Dot: fixed.Point26_6{
				X: fixed.I(x - width/2 + ox),
				Y: fixed.I(y + oy),
			},
		}
		d.DrawString(text)
	}

	drawAt(1, 1, labelShade)
	drawAt(0, 0, labelText)
}
