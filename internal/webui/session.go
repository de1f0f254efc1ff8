package webui

import (
	"context"

	"github.com/google/uuid"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/backend"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/metrics"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/overlay"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/stream"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/zones"
)

// session is one open editor: the loaded zone set, the live frame source and
// the render loop feeding the MJPEG fanout. Everything hangs off one context
// so closing the session releases the feed connection and stops the loop in
// one cancellation.
type session struct {
	id       string
	platform string
	editor   *zones.Editor
	source   *stream.Source
	fanout   *overlay.Broadcaster
	cancel   context.CancelFunc
}

func (s *session) close() {
	s.cancel()
	s.source.Close()
	s.fanout.Close()
	logger.Info("WebUI", "editor session %s (%s) closed", s.id, s.platform)
}

// sessionManager holds the single active editor session. Opening a platform
// while another session is active closes the previous one first; the editor
// UI is a modal surface, two concurrent sessions have no meaning.
type sessionManager struct {
	cfg     Config
	client  *backend.Client
	metrics *metrics.Metrics

	// guarded by the server mutex in server.go
	current *session
}

// open loads zones for platform and starts a fresh session. A load failure is
// not fatal: the editor opens on a blank slate and the error is reported to
// the caller alongside the session.
func (sm *sessionManager) open(parent context.Context, platform string) (*session, error) {
	if sm.current != nil {
		sm.current.close()
		sm.current = nil
	}

	set, loadErr := sm.client.LoadZones(parent, platform)
	if loadErr != nil {
		logger.Warn("WebUI", "[%s] zone load failed, opening blank: %v", platform, loadErr)
	}

	ctx, cancel := context.WithCancel(parent)
	editor := zones.NewEditor(platform, set)
	source := stream.Open(ctx, sm.client.VideoFeedURL(platform), sm.metrics)
	fanout := overlay.NewBroadcaster(sm.metrics)

	renderer := overlay.NewRenderer(sm.cfg.CanvasWidth, sm.cfg.CanvasHeight)
	loop := overlay.NewLoop(renderer, source, editor.Snapshot, fanout, sm.cfg.TargetFPS, sm.metrics)
	go loop.Run(ctx)

	s := &session{
		id:       uuid.NewString(),
		platform: platform,
		editor:   editor,
		source:   source,
		fanout:   fanout,
		cancel:   cancel,
	}
	sm.current = s
	logger.Info("WebUI", "editor session %s opened for %s", s.id, platform)
	return s, loadErr
}

func (sm *sessionManager) get() (*session, bool) {
	return sm.current, sm.current != nil
}

func (sm *sessionManager) closeCurrent() bool {
	if sm.current == nil {
		return false
	}
	sm.current.close()
	sm.current = nil
	return true
}
