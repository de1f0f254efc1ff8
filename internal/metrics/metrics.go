package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Stream source counters
	FramesDecoded     atomic.Uint64
	FrameDecodeErrors atomic.Uint64
	StreamReconnects  atomic.Uint64

	// Render loop counters
	FramesComposited atomic.Uint64
	FramesDropped    atomic.Uint64
	RenderLatencyMs  atomic.Uint64 // Latency of the last composite in ms

	// Backend client counters
	FetchErrors atomic.Uint64
	ZoneSaves   atomic.Uint64
	SaveErrors  atomic.Uint64

	// Notification bus counters
	BusEventsPublished atomic.Uint64

	// Client tracking
	StreamClients atomic.Uint64
	SocketClients atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"dashboard_frames_decoded_total", "Total frames decoded from the backend video feed", m.FramesDecoded.Load},
		{"dashboard_frame_decode_errors_total", "Total frames that failed to decode", m.FrameDecodeErrors.Load},
		{"dashboard_stream_reconnects_total", "Total reconnect attempts against the video feed", m.StreamReconnects.Load},
		{"dashboard_frames_composited_total", "Total overlay frames composited by the render loop", m.FramesComposited.Load},
		{"dashboard_frames_dropped_total", "Total composited frames dropped on slow stream clients", m.FramesDropped.Load},
		{"dashboard_render_latency_ms", "Latency of the last overlay composite in milliseconds", m.RenderLatencyMs.Load},
		{"dashboard_fetch_errors_total", "Total backend REST fetch failures", m.FetchErrors.Load},
		{"dashboard_zone_saves_total", "Total successful zone persistence calls", m.ZoneSaves.Load},
		{"dashboard_zone_save_errors_total", "Total failed zone persistence calls", m.SaveErrors.Load},
		{"dashboard_bus_events_published_total", "Total zones:updated notifications published", m.BusEventsPublished.Load},
		{"dashboard_stream_clients", "Connected MJPEG stream viewers", m.StreamClients.Load},
		{"dashboard_socket_clients", "Connected WebSocket dashboard clients", m.SocketClients.Load},
	}

	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// ObserveRenderLatency records how long the last composite took.
func (m *Metrics) ObserveRenderLatency(d time.Duration) {
	m.RenderLatencyMs.Store(uint64(d.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
