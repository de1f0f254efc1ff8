package stream

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/metrics"
)

func encodeTestJPEG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// mjpegHandler writes n frames then blocks until the client goes away.
func mjpegHandler(t *testing.T, frames [][]byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Errorf("httptest writer is not a flusher")
			return
		}
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		for _, f := range frames {
			_, _ = fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n")
			_, _ = w.Write(f)
			_, _ = fmt.Fprintf(w, "\r\n")
			flusher.Flush()
		}
		<-r.Context().Done()
	}
}

func waitFor(t *testing.T, deadline time.Duration, cond func() bool) {
	t.Helper()
	stop := time.Now().Add(deadline)
	for time.Now().Before(stop) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", deadline)
}

func TestSourceDeliversLatestFrame(t *testing.T) {
	red := encodeTestJPEG(t, color.RGBA{R: 255, A: 255})
	blue := encodeTestJPEG(t, color.RGBA{B: 255, A: 255})
	srv := httptest.NewServer(mjpegHandler(t, [][]byte{red, blue}))
	defer srv.Close()

	m := metrics.New()
	src := Open(context.Background(), srv.URL, m)
	defer src.Close()

	waitFor(t, 2*time.Second, func() bool {
		return m.FramesDecoded.Load() >= 2
	})

	frame, ok := src.Latest()
	if !ok {
		t.Fatalf("no frame available")
	}
	if frame.Seq != 2 {
		t.Fatalf("latest frame seq = %d, want 2", frame.Seq)
	}
	if !src.Connected() {
		t.Fatalf("source should report connected")
	}
}

func TestSourceSkipsTornFrames(t *testing.T) {
	good := encodeTestJPEG(t, color.RGBA{G: 255, A: 255})
	srv := httptest.NewServer(mjpegHandler(t, [][]byte{[]byte("not a jpeg"), good}))
	defer srv.Close()

	m := metrics.New()
	src := Open(context.Background(), srv.URL, m)
	defer src.Close()

	waitFor(t, 2*time.Second, func() bool {
		return m.FramesDecoded.Load() >= 1
	})
	if m.FrameDecodeErrors.Load() != 1 {
		t.Fatalf("decode errors = %d, want 1", m.FrameDecodeErrors.Load())
	}
	if frame, ok := src.Latest(); !ok || frame.Seq != 1 {
		t.Fatalf("good frame should still land, got %v ok=%v", frame, ok)
	}
}

func TestSourceRetriesAfterFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := metrics.New()
	src := newSource(srv.URL, m, 20*time.Millisecond)
	src.start(context.Background())
	defer src.Close()

	waitFor(t, 2*time.Second, func() bool {
		return m.StreamReconnects.Load() >= 2
	})
	if src.Connected() {
		t.Fatalf("source must not report connected while the feed is down")
	}
	if _, ok := src.Latest(); ok {
		t.Fatalf("no frame should be available")
	}
}

func TestSourceCloseReleasesConnection(t *testing.T) {
	released := make(chan struct{})
	frame := encodeTestJPEG(t, color.RGBA{R: 128, A: 255})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mjpegHandler(t, [][]byte{frame})(w, r)
		close(released)
	}))
	defer srv.Close()

	src := Open(context.Background(), srv.URL, nil)
	waitFor(t, 2*time.Second, func() bool {
		_, ok := src.Latest()
		return ok
	})

	src.Close()
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatalf("server handler still holding the connection after Close")
	}
}
