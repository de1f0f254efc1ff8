// Package stream consumes a backend video_feed endpoint: a perpetual
// multipart/x-mixed-replace JPEG resource that keeps pushing new bytes at the
// same URL. It exposes latest-decoded-frame semantics to the render loop.
package stream

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/metrics"
)

// DefaultRetryDelay is the pause between reconnect attempts when the feed
// drops. Mirrors a browser's own passive image-reload cadence.
const DefaultRetryDelay = time.Second

// Frame is one decoded raster image from the feed. Consumers read the current
// frame by reference each tick and never hold one across a blocking boundary.
type Frame struct {
	Image image.Image
	Seq   uint64
	At    time.Time
}

// Source owns the HTTP connection to one platform's video feed and keeps the
// most recently decoded frame available. A failed or dropped connection is
// never fatal: the source keeps retrying until Close, and readers simply see
// Connected() == false in the meantime.
type Source struct {
	url     string
	client  *http.Client
	retry   time.Duration
	metrics *metrics.Metrics

	frame     atomic.Pointer[Frame]
	seq       atomic.Uint64
	connected atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Open starts consuming the feed at url. The returned source keeps running
// until Close (or the parent context) stops it. m may be nil.
func Open(ctx context.Context, url string, m *metrics.Metrics) *Source {
	s := newSource(url, m, DefaultRetryDelay)
	s.start(ctx)
	return s
}

func newSource(url string, m *metrics.Metrics, retry time.Duration) *Source {
	return &Source{
		url:     url,
		client:  &http.Client{}, // no timeout: the response body is endless
		retry:   retry,
		metrics: m,
		done:    make(chan struct{}),
	}
}

func (s *Source) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(ctx)
}

// Latest returns the most recently decoded frame, if any arrived yet.
func (s *Source) Latest() (*Frame, bool) {
	f := s.frame.Load()
	return f, f != nil
}

// Connected reports whether the feed is currently delivering frames. The
// surrounding UI shows a "connecting" indicator while this is false.
func (s *Source) Connected() bool {
	return s.connected.Load()
}

// Close releases the underlying connection immediately and stops all frame
// requests. Safe to call more than once.
func (s *Source) Close() {
	s.cancel()
	<-s.done
}

func (s *Source) run(ctx context.Context) {
	defer close(s.done)

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.consume(ctx)
		s.connected.Store(false)
		if ctx.Err() != nil {
			return
		}

		if s.metrics != nil {
			s.metrics.StreamReconnects.Add(1)
		}
		logger.Warn("Stream", "feed %s dropped: %v (retrying in %v)", s.url, err, s.retry)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retry):
		}
	}
}

func (s *Source) consume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("feed returned %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("parse content type: %w", err)
	}
	if mediaType != "multipart/x-mixed-replace" || params["boundary"] == "" {
		return fmt.Errorf("unexpected content type %q", mediaType)
	}

	logger.Info("Stream", "feed %s connected", s.url)
	reader := multipart.NewReader(resp.Body, params["boundary"])

	for {
		part, err := reader.NextPart()
		if err != nil {
			return fmt.Errorf("next part: %w", err)
		}

		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return fmt.Errorf("read part: %w", err)
		}

		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			// A torn frame is not a dead feed; skip it and keep reading.
			if s.metrics != nil {
				s.metrics.FrameDecodeErrors.Add(1)
			}
			continue
		}

		s.frame.Store(&Frame{
			Image: img,
			Seq:   s.seq.Add(1),
			At:    time.Now(),
		})
		s.connected.Store(true)
		if s.metrics != nil {
			s.metrics.FramesDecoded.Add(1)
		}
	}
}
