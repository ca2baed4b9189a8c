package output

import (
	"image"
)

// Output is a sink for captured frames. Implementations fan frames out to
// whatever transport they serve (MJPEG stream today; a virtual camera or
// file writer fit the same shape).
type Output interface {
	// Start initializes the output mechanism.
	Start() error

	// Stop cleanly shuts down the output.
	Stop() error

	// WriteFrame sends a frame to the output. RGBA input.
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type.
	Name() string

	// IsRunning reports whether the output is active.
	IsRunning() bool
}

// Config holds common configuration for all output types.
type Config struct {
	Width       int
	Height      int
	FPS         int
	JPEGQuality int
}
