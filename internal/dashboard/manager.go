package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/backend"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/bus"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/zones"
)

// DefaultRefreshInterval paces the periodic REST refetch.
const DefaultRefreshInterval = 30 * time.Second

// Notifier pushes an event to the connected browser clients. May be nil.
type Notifier func(event string, payload any)

// Manager drives the three dashboard widgets. Fetch failures are never
// retried with backoff; the next natural trigger (filter change, bus
// notification, periodic tick) is the retry, and widgets keep showing their
// last known good data in the meantime.
type Manager struct {
	client  *backend.Client
	bus     *bus.Bus
	refresh time.Duration
	notify  Notifier

	filterMu sync.Mutex
	platform string
	period   string
	scope    Scope

	summary Widget[backend.Summary]
	chart   Widget[backend.Chart]
	grid    Widget[Grid]
}

// NewManager creates a manager over the backend client and notification bus.
func NewManager(client *backend.Client, b *bus.Bus, refresh time.Duration) *Manager {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	m := &Manager{
		client:  client,
		bus:     b,
		refresh: refresh,
	}
	m.platform = "all"
	m.period = "month"
	m.scope = Scope{Live: true}
	return m
}

// SetNotifier installs the browser-push hook.
func (m *Manager) SetNotifier(n Notifier) {
	m.notify = n
}

// Run performs the initial fetch, then reacts to bus notifications and the
// periodic refresh tick until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	id, events := m.bus.Subscribe()
	defer m.bus.Unsubscribe(id)

	m.Refresh(ctx)

	ticker := time.NewTicker(m.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handleZonesUpdated(ctx, ev)
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// handleZonesUpdated treats a notification as a hint to refetch. Whether the
// payload is present or not, counts are re-read from the backend; zone
// geometry is not count data, so the payload alone cannot update a widget.
func (m *Manager) handleZonesUpdated(ctx context.Context, ev bus.Event) {
	if !m.renders(ev.Platform) {
		return
	}
	logger.Debug("Dashboard", "zones updated for %s, refetching", ev.Platform)
	m.Refresh(ctx)
	m.push("zones:updated", map[string]any{
		"platform": ev.Platform,
		"zones":    zoneNamesOf(ev.Zones),
	})
}

// renders reports whether the current filter includes platform.
func (m *Manager) renders(platform string) bool {
	m.filterMu.Lock()
	defer m.filterMu.Unlock()
	return m.platform == "all" || m.platform == platform
}

// SetFilter changes the platform/period/scope filter and refetches.
func (m *Manager) SetFilter(ctx context.Context, platform, period string, scope Scope) {
	m.filterMu.Lock()
	if platform != "" {
		m.platform = platform
	}
	if period != "" {
		m.period = period
	}
	m.scope = scope
	m.filterMu.Unlock()

	m.Refresh(ctx)
}

// Filter returns the current platform, period and scope.
func (m *Manager) Filter() (string, string, Scope) {
	m.filterMu.Lock()
	defer m.filterMu.Unlock()
	return m.platform, m.period, m.scope
}

// Refresh refetches every widget from REST and applies the merge rule.
func (m *Manager) Refresh(ctx context.Context) {
	platform, period, _ := m.Filter()

	if sum, err := m.client.TodaySummary(ctx, platform); err != nil {
		logger.Warn("Dashboard", "summary fetch failed: %v", err)
	} else if m.summary.Apply(sum) {
		m.push("dashboard_update", map[string]any{"summary": sum})
	}

	if chart, err := m.client.Chart(ctx, platform, period); err != nil {
		logger.Warn("Dashboard", "chart fetch failed: %v", err)
	} else if m.chart.Apply(chart) {
		m.push("dashboard_update", map[string]any{"chart": chart})
	}

	m.refreshGrid(ctx)
}

// refreshGrid rebuilds the platform grid from the camera list plus one
// summary per platform. A platform whose summary fetch fails still gets a
// cell, flagged offline, so the grid never loses a platform to a transient
// error.
func (m *Manager) refreshGrid(ctx context.Context) {
	cams, err := m.client.Cameras(ctx)
	if err != nil {
		logger.Warn("Dashboard", "camera list fetch failed: %v", err)
		return
	}

	grid := Grid{Platforms: make([]backend.PlatformSnapshot, 0, len(cams))}
	for _, cam := range cams {
		cell := backend.PlatformSnapshot{
			Platform: cam.Platform,
			Name:     cam.Name,
			Status:   cam.Status,
		}
		if sum, err := m.client.TodaySummary(ctx, cam.Platform); err != nil {
			cell.Status = "offline"
		} else {
			cell.Loaded = sum.Counts.Loaded
			cell.Unloaded = sum.Counts.Unloaded
			cell.Zones = sum.Zones
		}
		grid.Platforms = append(grid.Platforms, cell)
	}

	if m.grid.Apply(grid) {
		m.push("dashboard_update", map[string]any{"platforms": grid.Platforms})
	}
}

// ApplyCount folds one real-time crossing increment into the widgets. Push is
// only authoritative under a live scope; for historical ranges it is ignored.
func (m *Manager) ApplyCount(ev backend.CountEvent) {
	_, _, scope := m.Filter()
	if !scope.Live || !m.renders(ev.Platform) {
		return
	}
	if ev.Qty == 0 {
		ev.Qty = 1
	}

	if sum, ok := m.summary.Value(); ok {
		next := sum
		next.Zones = cloneZoneCounts(sum.Zones)
		bumpCounts(&next.Counts, ev.Direction, ev.Qty)
		zc := next.Zones[ev.Zone]
		bumpCounts(&zc, ev.Direction, ev.Qty)
		if next.Zones == nil {
			next.Zones = make(map[string]backend.ZoneCounts)
		}
		next.Zones[ev.Zone] = zc
		m.summary.Apply(next)
	} else {
		next := backend.Summary{
			Platform: ev.Platform,
			Zones:    map[string]backend.ZoneCounts{},
		}
		bumpCounts(&next.Counts, ev.Direction, ev.Qty)
		zc := backend.ZoneCounts{}
		bumpCounts(&zc, ev.Direction, ev.Qty)
		next.Zones[ev.Zone] = zc
		m.summary.Apply(next)
	}

	if grid, ok := m.grid.Value(); ok {
		next := Grid{Platforms: make([]backend.PlatformSnapshot, len(grid.Platforms))}
		copy(next.Platforms, grid.Platforms)
		for i := range next.Platforms {
			if next.Platforms[i].Platform != ev.Platform {
				continue
			}
			cell := &next.Platforms[i]
			cell.Zones = cloneZoneCounts(cell.Zones)
			if cell.Zones == nil {
				cell.Zones = make(map[string]backend.ZoneCounts)
			}
			switch ev.Direction {
			case "loaded":
				cell.Loaded += ev.Qty
			case "unloaded":
				cell.Unloaded += ev.Qty
			}
			zc := cell.Zones[ev.Zone]
			bumpCounts(&zc, ev.Direction, ev.Qty)
			cell.Zones[ev.Zone] = zc
			cell.Status = "live"
		}
		m.grid.Apply(next)
	}

	m.push("dashboard_update", map[string]any{"count": ev})
}

// Summary returns the KPI widget state.
func (m *Manager) Summary() (backend.Summary, bool) {
	return m.summary.Value()
}

// Chart returns the chart widget state.
func (m *Manager) Chart() (backend.Chart, bool) {
	return m.chart.Value()
}

// Platforms returns the platform grid state.
func (m *Manager) Platforms() (Grid, bool) {
	return m.grid.Value()
}

func (m *Manager) push(event string, payload any) {
	if m.notify != nil {
		m.notify(event, payload)
	}
}

func bumpCounts(c *backend.ZoneCounts, direction string, qty int) {
	switch direction {
	case "loaded":
		c.Loaded += qty
	case "unloaded":
		c.Unloaded += qty
	}
}

func cloneZoneCounts(in map[string]backend.ZoneCounts) map[string]backend.ZoneCounts {
	if in == nil {
		return nil
	}
	out := make(map[string]backend.ZoneCounts, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func zoneNamesOf(set zones.Set) []string {
	if set == nil {
		return nil
	}
	var names []string
	for _, name := range zones.Names {
		if set[name] != nil {
			names = append(names, name)
		}
	}
	return names
}
