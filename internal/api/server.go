// Package api exposes the HTTP control and streaming surface: status and
// config endpoints, a PNG snapshot, the MJPEG stream, and a websocket pushing
// encoded frames.
package api

import (
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/framescope/framescope/internal/capture"
	"github.com/framescope/framescope/internal/config"
	"github.com/framescope/framescope/internal/logger"
	"github.com/framescope/framescope/internal/output"
	"github.com/framescope/framescope/internal/platform"
)

// Server represents the HTTP API server.
type Server struct {
	router    *mux.Router
	cap       *capture.Capture
	backend   platform.Backend
	configMgr *config.Manager
	stream    *output.MJPEGOutput
	upgrader  websocket.Upgrader
}

// NewServer creates a new API server around a running capture controller and
// its MJPEG output.
func NewServer(cap *capture.Capture, backend platform.Backend, configMgr *config.Manager, stream *output.MJPEGOutput) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		cap:       cap,
		backend:   backend,
		configMgr: configMgr,
		stream:    stream,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	// Target enumeration
	api.HandleFunc("/targets", s.handleTargets).Methods("GET")

	// Snapshot and frame push
	api.HandleFunc("/frame.png", s.handleFramePNG).Methods("GET")
	api.HandleFunc("/frames", s.handleFrameStream)

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")

	// MJPEG stream and viewer page
	s.router.HandleFunc("/stream", s.stream.StreamHandler()).Methods("GET")
	s.router.HandleFunc("/", s.stream.ViewerHandler()).Methods("GET")
}

// Start starts the HTTP server.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logger.WithComponent("api").Info().Str("addr", addr).Msg("Starting server")
	return http.ListenAndServe(addr, s.enableCORS(s.router))
}

// enableCORS adds CORS headers.
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	frames, clients, fps := s.stream.Stats()
	status := map[string]interface{}{
		"backend":        s.backend.Name(),
		"active":         s.cap.Active(),
		"target_closed":  s.cap.TargetClosed(),
		"frames":         s.cap.FrameCount(),
		"stream_frames":  frames,
		"stream_clients": clients,
		"stream_fps":     fps,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	monitors, err := s.backend.Monitors()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	windows, err := s.backend.Windows()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"monitors": monitors,
		"windows":  windows,
	})
}

// handleFramePNG serves the newest captured frame as a lossless PNG at full
// content resolution, unscaled.
func (s *Server) handleFramePNG(w http.ResponseWriter, r *http.Request) {
	img, err := s.cap.Frame()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("PNG encode failed mid-response")
	}
}

// handleFrameStream pushes encoded JPEG frames over a websocket at the stream
// cadence. Binary messages, one frame each.
func (s *Server) handleFrameStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	fps := s.configMgr.Get().Server.StreamFPS
	if fps <= 0 {
		fps = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var sent uint64
	for range ticker.C {
		frames, _, _ := s.stream.Stats()
		if frames == sent {
			continue
		}
		data := s.stream.LastFrame()
		if data == nil {
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
		sent = frames
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.configMgr.Get()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.configMgr.Update(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}
