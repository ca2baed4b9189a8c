package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/framescope/framescope/internal/logger"
)

// MJPEGOutput streams frames as Motion JPEG over HTTP. Any browser can open
// the stream endpoint directly; no client-side code needed.
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	// Current frame buffer
	frameMu    sync.RWMutex
	current    []byte
	lastUpdate time.Time

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
	startTime  time.Time
}

// NewMJPEGOutput creates a new MJPEG stream output.
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = 90
	}
	return &MJPEGOutput{
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output. The HTTP handler is registered
// separately via StreamHandler().
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("mjpeg").Info().
		Int("width", m.config.Width).
		Int("height", m.config.Height).
		Int("fps", m.config.FPS).
		Msg("MJPEG output started")
	return nil
}

// Stop cleanly shuts down the output and disconnects all clients.
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	m.frameMu.RLock()
	frames := m.frameCount
	m.frameMu.RUnlock()

	logger.WithComponent("mjpeg").Info().
		Uint64("frames", frames).
		Msg("MJPEG output stopped")
	return nil
}

// WriteFrame encodes a frame and broadcasts it to all connected clients.
// Frames larger than the configured stream size are scaled down first.
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	img := m.scale(frame)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: m.config.JPEGQuality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.current = jpegData
	m.lastUpdate = time.Now()
	m.frameCount++
	m.frameMu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// scale fits the frame into the configured stream size, preserving aspect
// ratio. Frames already within bounds pass through untouched.
func (m *MJPEGOutput) scale(frame *image.RGBA) image.Image {
	if m.config.Width <= 0 || m.config.Height <= 0 {
		return frame
	}
	b := frame.Bounds()
	if b.Dx() <= m.config.Width && b.Dy() <= m.config.Height {
		return frame
	}

	sx := float64(m.config.Width) / float64(b.Dx())
	sy := float64(m.config.Height) / float64(b.Dy())
	s := sx
	if sy < s {
		s = sy
	}
	w := int(float64(b.Dx()) * s)
	h := int(float64(b.Dy()) * s)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, b, xdraw.Src, nil)
	return dst
}

// LastFrame returns the most recent encoded JPEG, or nil before the first
// frame.
func (m *MJPEGOutput) LastFrame() []byte {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.current
}

// Name returns the output type name.
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning reports whether the output is active.
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Stats reports broadcast counters for the status endpoint.
func (m *MJPEGOutput) Stats() (frames uint64, clients int, fps float64) {
	m.mu.RLock()
	running := m.running
	start := m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	frames = m.frameCount
	m.frameMu.RUnlock()

	m.clientsMu.RLock()
	clients = len(m.clients)
	m.clientsMu.RUnlock()

	if running && !start.IsZero() {
		if elapsed := time.Since(start).Seconds(); elapsed > 0 {
			fps = float64(frames) / elapsed
		}
	}
	return frames, clients, fps
}

// StreamHandler returns an http.Handler serving the multipart MJPEG stream.
// Mount at /stream or similar.
func (m *MJPEGOutput) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log := logger.WithComponent("mjpeg")
		log.Info().Int("clients", clientCount).Msg("Stream client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Stream client disconnected")
		}()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
					return
				}
				if _, err := w.Write(jpegData); err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			}
		}
	}
}

// ViewerHandler returns a minimal HTML page wrapping the stream.
func (m *MJPEGOutput) ViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>framescope</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #000;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
        }
        img {
            width: 100vw;
            height: 100vh;
            object-fit: contain;
            display: block;
            background: #000;
        }
    </style>
</head>
<body>
    <img src="/stream" alt="framescope live stream">
</body>
</html>`))
	}
}
