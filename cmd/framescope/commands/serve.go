package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/framescope/framescope/internal/api"
	"github.com/framescope/framescope/internal/capture"
	"github.com/framescope/framescope/internal/logger"
	"github.com/framescope/framescope/internal/output"
	"github.com/framescope/framescope/internal/platform/backends"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the framescope streaming server",
	Long: `Start the framescope HTTP server, capturing a monitor or window and
serving it as an MJPEG stream with a REST API.`,
	Example: `  # Stream the primary monitor on the default port (8080)
  framescope serve

  # Stream monitor 2 on a custom port
  framescope serve --monitor 2 --port 9090

  # Stream a window by title
  framescope serve --window "Firefox"

  # Start with debug logging
  framescope serve --log-level debug`,
	RunE: runServe,
}

var (
	serveMonitor int
	serveWindow  string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&serveMonitor, "monitor", "m", 0, "monitor to capture (0 = primary)")
	serveCmd.Flags().StringVarP(&serveWindow, "window", "w", "", "window title to capture")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("serve")

	backend, err := backends.New(cfg.Backend, cfg.Capture.FPS)
	if err != nil {
		return err
	}

	cap := capture.New(backend, capture.Options{
		PollInterval: time.Duration(cfg.Capture.PollIntervalMS) * time.Millisecond,
		StopTimeout:  time.Duration(cfg.Capture.StopTimeoutMS) * time.Millisecond,
	})
	defer cap.Close()

	spec := targetSpec(serveMonitor, serveWindow)
	if err := cap.Start(spec, cfg.Capture.AwaitFirstFrame); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	stream := output.NewMJPEGOutput(output.Config{
		Width:       cfg.Server.StreamWidth,
		Height:      cfg.Server.StreamHeight,
		FPS:         cfg.Server.StreamFPS,
		JPEGQuality: cfg.Server.JPEGQuality,
	})
	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start MJPEG output: %w", err)
	}
	defer stream.Stop()

	// Pump materialized frames into the stream at the stream cadence.
	stopPump := make(chan struct{})
	go func() {
		fps := cfg.Server.StreamFPS
		if fps <= 0 {
			fps = 15
		}
		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()
		for {
			select {
			case <-stopPump:
				return
			case <-ticker.C:
				img, err := cap.Frame()
				if err != nil {
					if errors.Is(err, capture.ErrNotRunning) {
						return
					}
					continue
				}
				if err := stream.WriteFrame(img); err != nil {
					log.Debug().Err(err).Msg("Frame write failed")
				}
			}
		}
	}()
	defer close(stopPump)

	server := api.NewServer(cap, backend, configMgr, stream)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil {
			log.Error().Err(err).Msg("Server error")
			os.Exit(1)
		}
	}()

	log.Info().
		Int("port", cfg.Server.Port).
		Stringer("target", spec).
		Str("backend", backend.Name()).
		Msg("framescope is running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down")
	return nil
}
