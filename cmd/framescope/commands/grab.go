package commands

import (
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/framescope/framescope/internal/capture"
	"github.com/framescope/framescope/internal/platform"
	"github.com/framescope/framescope/internal/platform/backends"
)

var grabCmd = &cobra.Command{
	Use:   "grab",
	Short: "Capture a single frame to a PNG file",
	Long: `Capture one frame from a monitor or window and write it as PNG.

The command starts a capture session, waits for the first frame to arrive,
materializes it, and stops.`,
	Example: `  # Grab the primary monitor
  framescope grab -o shot.png

  # Grab monitor 2
  framescope grab --monitor 2 -o shot.png

  # Grab a window by title
  framescope grab --window "Firefox" -o firefox.png`,
	RunE: runGrab,
}

var (
	grabMonitor int
	grabWindow  string
	grabOutput  string
)

func init() {
	rootCmd.AddCommand(grabCmd)

	grabCmd.Flags().IntVarP(&grabMonitor, "monitor", "m", 0, "monitor to capture (0 = primary)")
	grabCmd.Flags().StringVarP(&grabWindow, "window", "w", "", "window title to capture")
	grabCmd.Flags().StringVarP(&grabOutput, "output", "o", "frame.png", "output file")
}

// targetSpec builds the capture target from the monitor/window flags.
func targetSpec(monitor int, window string) platform.TargetSpec {
	if window != "" {
		return platform.TargetSpec{Kind: platform.TargetWindow, WindowTitle: window}
	}
	return platform.TargetSpec{Kind: platform.TargetMonitor, Monitor: monitor}
}

func runGrab(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	backend, err := backends.New(cfg.Backend, cfg.Capture.FPS)
	if err != nil {
		return err
	}

	cap := capture.New(backend, capture.Options{
		PollInterval: time.Duration(cfg.Capture.PollIntervalMS) * time.Millisecond,
		StopTimeout:  time.Duration(cfg.Capture.StopTimeoutMS) * time.Millisecond,
	})
	defer cap.Close()

	spec := targetSpec(grabMonitor, grabWindow)
	if err := cap.Start(spec, true); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	img, err := cap.Frame()
	if err != nil {
		return fmt.Errorf("no frame captured: %w", err)
	}

	f, err := os.Create(grabOutput)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}

	b := img.Bounds()
	fmt.Printf("Wrote %dx%d frame to %s\n", b.Dx(), b.Dy(), grabOutput)
	return nil
}
