package overlay

import (
	"context"
	"image"
	"time"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/metrics"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/stream"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/zones"
)

// FrameSource is the latest-frame view the loop reads each tick. Connected
// reports whether the feed is currently delivering; while it is false the
// compositor draws the connecting indicator.
type FrameSource interface {
	Latest() (*stream.Frame, bool)
	Connected() bool
}

// StateFunc returns the freshest editor state. The loop calls it every tick
// instead of capturing a snapshot at start, so edits made at any time show up
// on the very next frame.
type StateFunc func() zones.Snapshot

// Loop is the continuously scheduled compositor for one editor session. Every
// tick it unconditionally redraws: background, latest frame if one is
// available, committed zones, transient construction. A missing or broken
// frame never halts the loop; the frame draw step is simply skipped.
type Loop struct {
	renderer *Renderer
	source   FrameSource
	state    StateFunc
	fanout   *Broadcaster
	interval time.Duration
	metrics  *metrics.Metrics
}

// NewLoop wires a render loop. fps <= 0 falls back to 30.
func NewLoop(renderer *Renderer, source FrameSource, state StateFunc, fanout *Broadcaster, fps int, m *metrics.Metrics) *Loop {
	if fps <= 0 {
		fps = 30
	}
	return &Loop{
		renderer: renderer,
		source:   source,
		state:    state,
		fanout:   fanout,
		interval: time.Second / time.Duration(fps),
		metrics:  m,
	}
}

// Run ticks until the session context is cancelled.
func (l *Loop) Run(ctx context.Context) {
	logger.Info("Overlay", "render loop started (interval=%v)", l.interval)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Overlay", "render loop stopped")
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	start := time.Now()

	var frame image.Image
	if f, ok := l.source.Latest(); ok {
		frame = f.Image
	}

	canvas := l.renderer.Compose(frame, l.source.Connected(), l.state())
	data, err := EncodeJPEG(canvas)
	if err != nil {
		logger.Error("Overlay", "encode failed: %v", err)
		return
	}

	l.fanout.Broadcast(data)
	if l.metrics != nil {
		l.metrics.FramesComposited.Add(1)
		l.metrics.ObserveRenderLatency(time.Since(start))
	}
}
