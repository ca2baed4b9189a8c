// Package platform defines the boundary between the capture pipeline and the
// operating-system composition-capture facility. Backends (sim, x11, win32)
// implement these interfaces; the pipeline in internal/capture consumes them
// without knowing which one it is driving.
package platform

import (
	"errors"
	"fmt"
)

var (
	// ErrTargetNotFound means no monitor/window matched the target spec.
	ErrTargetNotFound = errors.New("capture target not found")

	// ErrTargetInvalid means a resolved handle no longer refers to a
	// capturable, visible, top-level target.
	ErrTargetInvalid = errors.New("capture target no longer valid")

	// ErrFeatureLevelNotSatisfied means the required GPU capability tier is
	// unavailable on this machine.
	ErrFeatureLevelNotSatisfied = errors.New("graphics device feature level not satisfied")

	// ErrUnsupported means the backend cannot run in the current environment.
	ErrUnsupported = errors.New("capture backend not supported in this environment")
)

// PixelFormat identifies the negotiated surface pixel format.
type PixelFormat int

const (
	// RGBA8 is four bytes per pixel, R,G,B,A channel order. The only format
	// the pipeline negotiates; the materialization crop math assumes it.
	RGBA8 PixelFormat = iota
)

// BytesPerPixel returns the per-pixel byte width of the format.
func (f PixelFormat) BytesPerPixel() int {
	return 4
}

func (f PixelFormat) String() string {
	if f == RGBA8 {
		return "rgba8"
	}
	return fmt.Sprintf("pixelformat(%d)", int(f))
}

// Size is a content or texture size in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// TargetKind discriminates what a TargetSpec refers to.
type TargetKind string

const (
	TargetMonitor TargetKind = "monitor"
	TargetWindow  TargetKind = "window"
)

// TargetSpec names the thing to capture before it has been resolved into an
// Item. Monitor indices are 1-based; 0 selects the primary monitor.
type TargetSpec struct {
	Kind        TargetKind
	Monitor     int
	WindowTitle string
}

func (t TargetSpec) String() string {
	if t.Kind == TargetWindow {
		return fmt.Sprintf("window %q", t.WindowTitle)
	}
	if t.Monitor == 0 {
		return "primary monitor"
	}
	return fmt.Sprintf("monitor %d", t.Monitor)
}

// TargetInfo describes an enumerated monitor or window.
type TargetInfo struct {
	Kind    TargetKind `json:"kind"`
	Monitor int        `json:"monitor,omitempty"`
	Title   string     `json:"title,omitempty"`
	Size    Size       `json:"size"`
}

// Token identifies a callback registration so it can be removed.
type Token uint64

// Item is a resolved capturable target. The OS may invalidate it at any time;
// the only notification is the Closed callback.
type Item interface {
	// Size reports the current content size of the target.
	Size() (Size, error)

	// Closed registers a callback invoked on the capture thread when the
	// target disappears (window closed, monitor disconnected).
	Closed(fn func()) (Token, error)

	// RemoveClosed removes a previously registered Closed callback.
	RemoveClosed(Token)
}

// Surface is one GPU-resident captured image owned by a frame pool. The
// allocated size may exceed the content size reported alongside it.
type Surface interface {
	Size() Size
}

// Mapping is a CPU-visible copy of a surface. Data holds Size().Height rows
// of RowPitch bytes each; RowPitch may exceed width*4 (padding on the right).
type Mapping struct {
	RowPitch int
	Data     []byte
}

// SurfaceFrame pairs a surface with the content size observed at capture
// time. ContentSize may be smaller than the surface's allocated size.
type SurfaceFrame struct {
	Surface     Surface
	ContentSize Size
}

// Device is the graphics device used to interpret capture surfaces.
type Device interface {
	// ReadSurface performs the staging copy + map and returns the raw bytes.
	ReadSurface(s Surface) (Mapping, error)

	// Close releases the device.
	Close() error
}

// EventLoop is the cooperative, single-threaded message loop the capture
// thread pumps. Post and PostQuit are callable from any thread; Run must be
// called on the thread that created the loop.
type EventLoop interface {
	// Run pumps messages until a quit message arrives or stop reports true.
	// The stop check happens once per delivered message, matching a classic
	// GetMessage pump; an idle loop only wakes on a posted message.
	Run(stop func() bool) error

	// Post injects a message that invokes fn on the loop thread. Posting to
	// a loop that already exited is a silent no-op.
	Post(fn func())

	// PostQuit injects the quit sentinel. Safe to call more than once and
	// from any thread; it may be lost if the queue was already torn down.
	PostQuit()
}

// FramePool owns the bounded set of capture surfaces for one session.
type FramePool interface {
	// FrameArrived registers the frame-ready callback, invoked on the
	// capture thread once per delivered frame.
	FrameArrived(fn func()) (Token, error)

	// RemoveFrameArrived removes a previously registered callback.
	RemoveFrameArrived(Token)

	// TryNextFrame fetches the newest surface, or an error if none is
	// pending.
	TryNextFrame() (SurfaceFrame, error)

	// Recreate replaces the pool's surfaces at a new size. In-flight
	// references to previous surfaces become invalid.
	Recreate(size Size) error

	// CreateSession binds the pool to a target.
	CreateSession(item Item) (Session, error)

	// Close releases the pool.
	Close() error
}

// Session binds a frame pool to an item. Started exactly once, closed exactly
// once.
type Session interface {
	Start() error
	Close() error
}

// Backend is one OS capture facility. Initialize/Uninitialize bracket the
// capture thread's use of the subsystem and run on that thread.
type Backend interface {
	Name() string

	Initialize() error
	Uninitialize()

	NewDevice() (Device, error)
	NewEventLoop() (EventLoop, error)
	NewFramePool(dev Device, format PixelFormat, frames int, size Size) (FramePool, error)

	// Resolve turns a target spec into an opaque capturable item.
	Resolve(spec TargetSpec) (Item, error)

	// Monitors enumerates capturable monitors.
	Monitors() ([]TargetInfo, error)

	// Windows enumerates capturable top-level windows.
	Windows() ([]TargetInfo, error)
}
