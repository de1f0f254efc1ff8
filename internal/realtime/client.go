// Package realtime consumes the backend's websocket push channel and feeds
// crossing increments into the dashboard widgets.
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/backend"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
)

// DefaultRedialDelay is the pause between reconnection attempts.
const DefaultRedialDelay = 3 * time.Second

// CountSink receives decoded crossing increments.
type CountSink interface {
	ApplyCount(ev backend.CountEvent)
}

// Client maintains one websocket connection to the backend push endpoint and
// redials forever. Missing a push is acceptable; the widgets converge on the
// next periodic refetch anyway.
type Client struct {
	url    string
	sink   CountSink
	redial time.Duration
	dialer *websocket.Dialer
}

// NewClient creates a push client for the ws:// or wss:// endpoint at url.
func NewClient(url string, sink CountSink) *Client {
	return &Client{
		url:    url,
		sink:   sink,
		redial: DefaultRedialDelay,
		dialer: websocket.DefaultDialer,
	}
}

// Run dials and reads until ctx is cancelled, reconnecting on any failure.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.readLoop(ctx); err != nil {
			logger.Warn("Realtime", "push connection lost: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.redial):
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("Realtime", "connected to push channel at %s", c.url)

	// Unblock ReadMessage when the process shuts down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.dispatch(data)
	}
}

// envelope is the framed form of a push message. The backend also sends bare
// count events without a frame; both shapes are accepted.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Debug("Realtime", "unparseable push message: %v", err)
		return
	}

	payload := data
	if env.Type != "" {
		if env.Type != "dashboard_update" {
			logger.Debug("Realtime", "ignoring push type %q", env.Type)
			return
		}
		payload = env.Data
	}

	var ev backend.CountEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Platform == "" {
		logger.Debug("Realtime", "push message without a count event, skipped")
		return
	}

	logger.Debug("Realtime", "count: %s/%s %s x%d", ev.Platform, ev.Zone, ev.Direction, ev.Qty)
	c.sink.ApplyCount(ev)
}
