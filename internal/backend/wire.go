package backend

// Wire shapes for the counting backend's REST API and push channel.

// ZoneCounts is the per-zone crossing breakdown.
type ZoneCounts struct {
	Loaded   int `json:"loaded"`
	Unloaded int `json:"unloaded"`
}

// Summary is the today-summary payload for one platform.
type Summary struct {
	Platform   string                `json:"platform"`
	Counts     ZoneCounts            `json:"counts"`
	Zones      map[string]ZoneCounts `json:"zones,omitempty"`
	ReportTime string                `json:"report_time,omitempty"`
}

// Empty reports whether the summary carries no data worth displaying.
func (s Summary) Empty() bool {
	return s.Counts.Loaded == 0 && s.Counts.Unloaded == 0 && len(s.Zones) == 0
}

// ChartPoint is one bucket of a time-series chart.
type ChartPoint struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// Chart is the charts/{platform}_{period} payload.
type Chart struct {
	Data  []ChartPoint `json:"data"`
	Total int          `json:"total"`
}

// Empty reports whether the chart has no points.
func (c Chart) Empty() bool {
	return len(c.Data) == 0
}

// Camera describes one platform's feed as listed by the backend.
type Camera struct {
	Platform string `json:"platform"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Status   string `json:"status"`
}

// PlatformSnapshot is the per-platform cell of the dashboard grid.
type PlatformSnapshot struct {
	Platform string                `json:"platform"`
	Name     string                `json:"name"`
	Loaded   int                   `json:"loaded"`
	Unloaded int                   `json:"unloaded"`
	Zones    map[string]ZoneCounts `json:"zones,omitempty"`
	Status   string                `json:"status"`
}

// CountEvent is one crossing increment relayed over the push channel.
type CountEvent struct {
	Platform  string `json:"platform"`
	Zone      string `json:"zone"`
	Direction string `json:"direction"` // "loaded" or "unloaded"
	Qty       int    `json:"qty"`
}
