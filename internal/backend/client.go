// Package backend is the HTTP client for the counting backend: the zone
// persistence bridge plus the summary, chart and camera-list endpoints the
// dashboard widgets consume.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/metrics"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/zones"
)

// Client talks to the counting backend's REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	metrics *metrics.Metrics
}

// New returns a client for the backend at baseURL. apiKey may be empty; when
// set it is sent as a bearer token. metrics may be nil.
func New(baseURL, apiKey string, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		metrics: m,
	}
}

// VideoFeedURL returns the perpetual MJPEG stream endpoint for a platform.
func (c *Client) VideoFeedURL(platform string) string {
	return fmt.Sprintf("%s/video_feed/%s", c.baseURL, platform)
}

// LoadZones fetches and normalizes the zone geometry for a platform. On any
// fetch or decode failure it returns an all-undefined set alongside the error,
// so the editor can still open with a blank slate.
func (c *Client) LoadZones(ctx context.Context, platform string) (zones.Set, error) {
	body, err := c.get(ctx, fmt.Sprintf("/get_zones/%s", platform))
	if err != nil {
		return zones.NewSet(), fmt.Errorf("load zones: %w", err)
	}
	defer body.Close()

	raws, err := decodeZonePayload(body)
	if err != nil {
		return zones.NewSet(), fmt.Errorf("load zones: %w", err)
	}
	return normalizeZones(raws), nil
}

// SaveZones persists the defined zones of a set. The remote copy is the
// durable source of truth; on failure the caller keeps its in-memory state and
// surfaces the error to the operator.
func (c *Client) SaveZones(ctx context.Context, platform string, set zones.Set) error {
	payload, err := encodeZones(set)
	if err != nil {
		return fmt.Errorf("save zones: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+fmt.Sprintf("/set_zones/%s", platform), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("save zones: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.countError()
		return fmt.Errorf("save zones: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.countError()
		return fmt.Errorf("save zones: backend returned %d", resp.StatusCode)
	}

	logger.Info("Backend", "[%s] saved %d zone(s)", platform, set.DefinedCount())
	return nil
}

// TodaySummary fetches the KPI summary for a platform ("all" for every one).
func (c *Client) TodaySummary(ctx context.Context, platform string) (Summary, error) {
	var out Summary
	if err := c.getJSON(ctx, "/api/v1/today-summary?platform="+platform, &out); err != nil {
		return Summary{}, fmt.Errorf("today summary: %w", err)
	}
	return out, nil
}

// Chart fetches the aggregate chart for a platform and period (e.g. "month").
func (c *Client) Chart(ctx context.Context, platform, period string) (Chart, error) {
	var out Chart
	path := fmt.Sprintf("/api/v1/charts/%s_%s", platform, period)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return Chart{}, fmt.Errorf("chart: %w", err)
	}
	return out, nil
}

// Cameras lists the configured platforms.
func (c *Client) Cameras(ctx context.Context) ([]Camera, error) {
	var out struct {
		Platforms []Camera `json:"platforms"`
	}
	if err := c.getJSON(ctx, "/api/v1/cameras", &out); err != nil {
		return nil, fmt.Errorf("cameras: %w", err)
	}
	return out.Platforms, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) get(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.countError()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		c.countError()
		return nil, fmt.Errorf("GET %s: backend returned %d", path, resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) countError() {
	if c.metrics != nil {
		c.metrics.FetchErrors.Add(1)
	}
}
