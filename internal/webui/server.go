package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/backend"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/bus"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/dashboard"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/geometry"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/metrics"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/zones"
)

// Server is the operator-facing HTTP server.
type Server struct {
	cfg     Config
	client  *backend.Client
	bus     *bus.Bus
	manager *dashboard.Manager
	metrics *metrics.Metrics
	hub     *Hub
	base    context.Context

	mu       sync.Mutex
	sessions sessionManager
}

// NewServer wires the webui server over the backend client, the notification
// bus and the dashboard manager. m may be nil.
func NewServer(cfg Config, client *backend.Client, b *bus.Bus, manager *dashboard.Manager, m *metrics.Metrics) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.CanvasWidth <= 0 || cfg.CanvasHeight <= 0 {
		cfg.CanvasWidth = def.CanvasWidth
		cfg.CanvasHeight = def.CanvasHeight
	}
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = def.TargetFPS
	}

	s := &Server{
		cfg:     cfg,
		client:  client,
		bus:     b,
		manager: manager,
		metrics: m,
		hub:     NewHub(m),
		sessions: sessionManager{
			cfg:     cfg,
			client:  client,
			metrics: m,
		},
	}
	s.base = context.Background()
	if manager != nil {
		manager.SetNotifier(s.hub.Notify)
	}
	return s
}

// SetBaseContext installs the context editor sessions hang off. Cancelling it
// closes the active session's stream and render loop; sessions must not die
// with the request that opened them, so the request context is never used.
func (s *Server) SetBaseContext(ctx context.Context) {
	s.base = ctx
}

// Hub exposes the websocket hub, mainly for shutdown.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/editor/open", s.handleEditorOpen)
	mux.HandleFunc("/api/editor/select", s.handleEditorSelect)
	mux.HandleFunc("/api/editor/click", s.handleEditorClick)
	mux.HandleFunc("/api/editor/clear", s.handleEditorClear)
	mux.HandleFunc("/api/editor/clear_all", s.handleEditorClearAll)
	mux.HandleFunc("/api/editor/save", s.handleEditorSave)
	mux.HandleFunc("/api/editor/stream", s.handleEditorStream)
	mux.HandleFunc("/api/editor", s.handleEditorClose)

	mux.HandleFunc("/api/dashboard/summary", s.handleDashboardSummary)
	mux.HandleFunc("/api/dashboard/chart", s.handleDashboardChart)
	mux.HandleFunc("/api/dashboard/platforms", s.handleDashboardPlatforms)
	mux.HandleFunc("/api/dashboard/filter", s.handleDashboardFilter)
	mux.Handle("/ws", s.hub)

	return mux
}

func (s *Server) handleEditorOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Platform == "" {
		writeJSONWithStatus(w, map[string]any{"error": "platform is required"}, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	sess, loadErr := s.sessions.open(s.base, req.Platform)
	s.mu.Unlock()

	payload := map[string]any{
		"session":  sess.id,
		"platform": sess.platform,
		"zones":    zonesPayload(sess.editor.ZoneSet()),
	}
	if loadErr != nil {
		payload["warning"] = "stored zones could not be loaded, starting blank"
	}
	writeJSON(w, payload)
}

func (s *Server) handleEditorSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.currentSession()
	if !ok {
		writeJSONWithStatus(w, map[string]any{"error": "no editor session"}, http.StatusConflict)
		return
	}

	var req struct {
		Zone string `json:"zone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "invalid request"}, http.StatusBadRequest)
		return
	}
	if err := sess.editor.Select(req.Zone); err != nil {
		if errors.Is(err, zones.ErrUnknownZone) {
			writeJSONWithStatus(w, map[string]any{"error": fmt.Sprintf("unknown zone %q", req.Zone)}, http.StatusBadRequest)
			return
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"selected": req.Zone})
}

func (s *Server) handleEditorClick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.currentSession()
	if !ok {
		writeJSONWithStatus(w, map[string]any{"error": "no editor session"}, http.StatusConflict)
		return
	}

	var req struct {
		X    float64       `json:"x"`
		Y    float64       `json:"y"`
		Rect geometry.Rect `json:"rect"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "invalid request"}, http.StatusBadRequest)
		return
	}

	p, ok := geometry.ToCanonical(req.X, req.Y, req.Rect)
	if !ok {
		// Canvas not mounted; the click never happened as far as state goes.
		writeJSON(w, map[string]any{"accepted": false})
		return
	}

	accepted, committed := sess.editor.Click(p)
	payload := map[string]any{
		"accepted":  accepted,
		"committed": committed,
		"point":     p,
	}
	if committed {
		payload["zones"] = zonesPayload(sess.editor.ZoneSet())
	}
	writeJSON(w, payload)
}

// handleEditorClear clears one zone and eagerly persists the remaining set.
// On persistence failure the in-memory clear stands and the error surfaces to
// the operator; there is no rollback.
func (s *Server) handleEditorClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.currentSession()
	if !ok {
		writeJSONWithStatus(w, map[string]any{"error": "no editor session"}, http.StatusConflict)
		return
	}

	var req struct {
		Zone string `json:"zone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "invalid request"}, http.StatusBadRequest)
		return
	}
	if err := sess.editor.ClearZone(req.Zone); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": fmt.Sprintf("unknown zone %q", req.Zone)}, http.StatusBadRequest)
		return
	}

	set := sess.editor.ZoneSet()
	if err := s.persist(r, sess.platform, set); err != nil {
		writeJSONWithStatus(w, map[string]any{
			"error": err.Error(),
			"zones": zonesPayload(set),
		}, http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{"cleared": req.Zone, "zones": zonesPayload(set)})
}

func (s *Server) handleEditorClearAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.currentSession()
	if !ok {
		writeJSONWithStatus(w, map[string]any{"error": "no editor session"}, http.StatusConflict)
		return
	}

	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Confirm {
		writeJSONWithStatus(w, map[string]any{"error": "confirmation required"}, http.StatusBadRequest)
		return
	}

	sess.editor.ClearAll()
	set := sess.editor.ZoneSet()
	if err := s.persist(r, sess.platform, set); err != nil {
		writeJSONWithStatus(w, map[string]any{
			"error": err.Error(),
			"zones": zonesPayload(set),
		}, http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{"zones": zonesPayload(set)})
}

// handleEditorSave persists the full set and closes the session on success.
// On failure the session stays open so the operator can retry without losing
// in-memory geometry.
func (s *Server) handleEditorSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, ok := s.currentSession()
	if !ok {
		writeJSONWithStatus(w, map[string]any{"error": "no editor session"}, http.StatusConflict)
		return
	}

	set := sess.editor.ZoneSet()
	if err := s.persist(r, sess.platform, set); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadGateway)
		return
	}

	s.mu.Lock()
	s.sessions.closeCurrent()
	s.mu.Unlock()

	writeJSON(w, map[string]any{"status": "saved", "zones": zonesPayload(set)})
}

func (s *Server) handleEditorClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	closed := s.sessions.closeCurrent()
	s.mu.Unlock()

	if !closed {
		writeJSONWithStatus(w, map[string]any{"error": "no editor session"}, http.StatusConflict)
		return
	}
	writeJSON(w, map[string]any{"status": "closed"})
}

func (s *Server) handleEditorStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession()
	if !ok {
		writeJSONWithStatus(w, map[string]any{"error": "no editor session"}, http.StatusConflict)
		return
	}

	id, frameCh := sess.fanout.Subscribe()
	defer sess.fanout.Unsubscribe(id)
	streamMJPEGFromChannel(w, frameCh, s.cfg.CanvasWidth, s.cfg.CanvasHeight)
}

func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	sum, ok := s.manager.Summary()
	writeJSON(w, map[string]any{"summary": sum, "ready": ok})
}

func (s *Server) handleDashboardChart(w http.ResponseWriter, r *http.Request) {
	chart, ok := s.manager.Chart()
	writeJSON(w, map[string]any{"chart": chart, "ready": ok})
}

func (s *Server) handleDashboardPlatforms(w http.ResponseWriter, r *http.Request) {
	grid, ok := s.manager.Platforms()
	writeJSON(w, map[string]any{"platforms": grid.Platforms, "ready": ok})
}

func (s *Server) handleDashboardFilter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Platform string          `json:"platform"`
		Period   string          `json:"period"`
		Scope    dashboard.Scope `json:"scope"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "invalid request"}, http.StatusBadRequest)
		return
	}

	s.manager.SetFilter(r.Context(), req.Platform, req.Period, req.Scope)
	platform, period, scope := s.manager.Filter()
	writeJSON(w, map[string]any{"platform": platform, "period": period, "scope": scope})
}

// persist saves the set, counts the outcome and publishes zones:updated on
// success.
func (s *Server) persist(r *http.Request, platform string, set zones.Set) error {
	if err := s.client.SaveZones(r.Context(), platform, set); err != nil {
		if s.metrics != nil {
			s.metrics.SaveErrors.Add(1)
		}
		logger.Error("WebUI", "[%s] zone save failed: %v", platform, err)
		return err
	}
	if s.metrics != nil {
		s.metrics.ZoneSaves.Add(1)
	}
	s.bus.Publish(bus.Event{Platform: platform, Zones: set})
	return nil
}

func (s *Server) currentSession() (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.get()
}

// zonesPayload serializes the defined zones as {name: {p1, p2}}.
func zonesPayload(set zones.Set) map[string]any {
	out := make(map[string]any, len(set))
	for _, name := range zones.Names {
		z := set[name]
		if z == nil {
			continue
		}
		out[name] = map[string]any{
			"p1": [2]int{z.P1.X, z.P1.Y},
			"p2": [2]int{z.P2.X, z.P2.Y},
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
