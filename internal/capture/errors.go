package capture

import "errors"

var (
	// ErrNotRunning is returned by Frame when no capture is active.
	ErrNotRunning = errors.New("capture is not running")

	// ErrNoFrameAvailable is returned by Frame when the mailbox is empty.
	ErrNoFrameAvailable = errors.New("no frame available yet")

	// ErrAlreadyStarted is returned by Start while a capture is active.
	ErrAlreadyStarted = errors.New("capture already started")

	// ErrFrameConversion wraps failures in the GPU to CPU materialization
	// step (staging copy, map, crop).
	ErrFrameConversion = errors.New("frame could not be materialized")
)
