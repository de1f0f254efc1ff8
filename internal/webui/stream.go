package webui

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"net/http"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/cylinder-vision/cargo-counting/dashboard-server/internal/logger"
)

// connectingJPEG renders the placeholder shown while the feed has not yet
// delivered a composited frame.
func connectingJPEG(width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 17, G: 24, B: 39, A: 255}), image.Point{}, draw.Src)

	label := "connecting..."
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 156, G: 163, B: 175, A: 255}),
		Face: basicfont.Face7x13,
	}
	w := d.MeasureString(label)
	d.Dot = fixed.Point26_6{
		X: fixed.I(width/2) - w/2,
		Y: fixed.I(height / 2),
	}
	d.DrawString(label)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// streamMJPEGFromChannel serves composited frames from a fanout channel as a
// multipart/x-mixed-replace stream. While no frame arrives the placeholder is
// sent periodically so the connection stays alive and the viewer sees the
// connecting state instead of a stalled image.
func streamMJPEGFromChannel(w http.ResponseWriter, frameCh <-chan []byte, width, height int) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	blank, err := connectingJPEG(width, height)
	if err != nil {
		http.Error(w, "Failed to render frame", http.StatusInternalServerError)
		return
	}

	for {
		var jpegData []byte
		select {
		case data, ok := <-frameCh:
			if !ok {
				// Session closed; the viewer should disconnect.
				return
			}
			jpegData = data
		case <-time.After(2 * time.Second):
			jpegData = blank
		}

		if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
			logger.Debug("MJPEG", "client disconnected during write: %v", err)
			return
		}
		if _, err := w.Write(jpegData); err != nil {
			logger.Debug("MJPEG", "client disconnected during frame write: %v", err)
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			logger.Debug("MJPEG", "client disconnected during delimiter write: %v", err)
			return
		}
		flusher.Flush()
	}
}
