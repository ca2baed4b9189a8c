package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/framescope/framescope/internal/platform"
	"github.com/framescope/framescope/internal/platform/sim"
)

// waitFor polls cond until it holds or the deadline passes. Frame delivery is
// asynchronous (events travel through the capture thread's loop), so tests
// observe effects, not call returns.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestCapture(t *testing.T, backend *sim.Backend) *Capture {
	t.Helper()
	c := New(backend, Options{})
	t.Cleanup(c.Close)
	return c
}

func monitorSpec(n int) platform.TargetSpec {
	return platform.TargetSpec{Kind: platform.TargetMonitor, Monitor: n}
}

func TestCaptureDeliversFrames(t *testing.T) {
	backend := sim.New()
	backend.RowPadding = 64
	target := backend.AddMonitor(800, 600)
	c := newTestCapture(t, backend)

	if err := c.Start(monitorSpec(0), false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !c.Active() {
		t.Fatal("capture not active after Start")
	}

	for i := 1; i <= 5; i++ {
		target.EmitFrame(byte(i))
		n := int64(i)
		waitFor(t, "frame delivery", func() bool { return c.FrameCount() >= n })
	}

	img, err := c.Frame()
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 800 || b.Dy() != 600 {
		t.Fatalf("frame is %dx%d, want 800x600", b.Dx(), b.Dy())
	}

	// The newest emitted frame wins, and the pitch padding must be cropped
	// away: every pixel matches the generator, none carries poison bytes.
	for _, pt := range []struct{ x, y int }{{0, 0}, {10, 20}, {799, 599}} {
		want := sim.PixelAt(5, pt.x, pt.y)
		got := img.RGBAAt(pt.x, pt.y)
		if [4]byte{got.R, got.G, got.B, got.A} != want {
			t.Errorf("pixel (%d,%d) = %v, want %v", pt.x, pt.y, got, want)
		}
	}
}

func TestFrameBeforeStartAndBeforeFirstArrival(t *testing.T) {
	backend := sim.New()
	backend.AddMonitor(320, 240)
	c := newTestCapture(t, backend)

	if _, err := c.Frame(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Frame before Start = %v, want ErrNotRunning", err)
	}

	if err := c.Start(monitorSpec(0), false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := c.Frame(); !errors.Is(err, ErrNoFrameAvailable) {
		t.Fatalf("Frame before first arrival = %v, want ErrNoFrameAvailable", err)
	}
}

func TestStartWhileActive(t *testing.T) {
	backend := sim.New()
	backend.AddMonitor(320, 240)
	c := newTestCapture(t, backend)

	if err := c.Start(monitorSpec(0), false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Start(monitorSpec(0), false); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}

	// Stop makes the controller restartable.
	c.Stop()
	if err := c.Start(monitorSpec(0), false); err != nil {
		t.Fatalf("Start after Stop failed: %v", err)
	}
}

func TestResolveErrors(t *testing.T) {
	backend := sim.New()
	backend.AddMonitor(320, 240)
	closedWin := backend.AddWindow("editor", 640, 480)
	closedWin.Close()
	c := newTestCapture(t, backend)

	err := c.Start(platform.TargetSpec{Kind: platform.TargetWindow, WindowTitle: "no-such-window"}, false)
	if !errors.Is(err, platform.ErrTargetNotFound) {
		t.Fatalf("Start on missing window = %v, want ErrTargetNotFound", err)
	}
	if c.Active() {
		t.Fatal("capture active after failed Start")
	}

	err = c.Start(platform.TargetSpec{Kind: platform.TargetWindow, WindowTitle: "editor"}, false)
	if !errors.Is(err, platform.ErrTargetInvalid) {
		t.Fatalf("Start on closed window = %v, want ErrTargetInvalid", err)
	}
	if c.Active() {
		t.Fatal("capture active after failed Start")
	}
}

func TestEarlyPlatformErrorFailsStart(t *testing.T) {
	backend := sim.New()
	backend.AddMonitor(320, 240)
	c := New(backend, Options{Format: platform.PixelFormat(99)})
	defer c.Close()

	// The pool is created on the capture thread; the failure must still
	// surface synchronously from Start.
	err := c.Start(monitorSpec(0), false)
	if err == nil {
		t.Fatal("Start succeeded with an unsupported pixel format")
	}
	if c.Active() {
		t.Fatal("capture active after failed Start")
	}
}

func TestResizeSkipsOneFrameThenDeliversNewSize(t *testing.T) {
	backend := sim.New()
	backend.RowPadding = 16
	target := backend.AddMonitor(800, 600)
	c := newTestCapture(t, backend)

	if err := c.Start(monitorSpec(0), false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	target.EmitFrame(1)
	waitFor(t, "first frame", func() bool { return c.FrameCount() >= 1 })

	target.Resize(1024, 768)

	// The first frame at the new size only recreates the pool; it is never
	// delivered. Keep emitting until one lands.
	target.EmitFrame(2)
	waitFor(t, "post-resize delivery", func() bool {
		if c.FrameCount() >= 2 {
			return true
		}
		target.EmitFrame(3)
		return false
	})

	// The consumer kept the pre-resize frame across the gap.
	img, err := c.Frame()
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 1024 || b.Dy() != 768 {
		t.Fatalf("post-resize frame is %dx%d, want 1024x768", b.Dx(), b.Dy())
	}
	got := img.RGBAAt(900, 700)
	want := sim.PixelAt(3, 900, 700)
	if [4]byte{got.R, got.G, got.B, got.A} != want {
		t.Errorf("pixel (900,700) = %v, want %v", got, want)
	}
}

func TestStopClearsMailboxAndState(t *testing.T) {
	backend := sim.New()
	target := backend.AddMonitor(640, 480)
	c := newTestCapture(t, backend)

	if err := c.Start(monitorSpec(0), false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	target.EmitFrame(1)
	waitFor(t, "frame delivery", func() bool { return c.FrameCount() >= 1 })

	c.Stop()

	if c.Active() {
		t.Fatal("capture active after Stop")
	}
	if _, err := c.Frame(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Frame after Stop = %v, want ErrNotRunning", err)
	}
	if n := c.FrameCount(); n != 0 {
		t.Fatalf("FrameCount after Stop = %d, want 0", n)
	}

	// Stop on an idle controller is a no-op.
	c.Stop()
}

func TestTargetClosedBeforeFirstFrame(t *testing.T) {
	backend := sim.New()
	win := backend.AddWindow("short-lived", 640, 480)
	c := newTestCapture(t, backend)

	spec := platform.TargetSpec{Kind: platform.TargetWindow, WindowTitle: "short-lived"}

	go func() {
		time.Sleep(20 * time.Millisecond)
		win.Close()
	}()

	// Awaiting the first frame must not hang when the target vanishes before
	// any frame arrived; Start returns success with an empty mailbox.
	if err := c.Start(spec, true); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := c.Frame(); !errors.Is(err, ErrNoFrameAvailable) {
		t.Fatalf("Frame after early close = %v, want ErrNoFrameAvailable", err)
	}

	waitFor(t, "target-closed flag", c.TargetClosed)

	// The session is defunct but still held; Stop releases it promptly since
	// the loop already exited.
	if !c.Active() {
		t.Fatal("capture inactive before Stop")
	}
	c.Stop()
	if c.Active() {
		t.Fatal("capture active after Stop")
	}
}

func TestTargetClosedStopsDelivery(t *testing.T) {
	backend := sim.New()
	win := backend.AddWindow("doomed", 640, 480)
	c := newTestCapture(t, backend)

	spec := platform.TargetSpec{Kind: platform.TargetWindow, WindowTitle: "doomed"}
	if err := c.Start(spec, false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	win.EmitFrame(7)
	waitFor(t, "frame delivery", func() bool { return c.FrameCount() >= 1 })

	win.Close()
	waitFor(t, "target-closed flag", c.TargetClosed)

	// The last frame stays readable until Stop.
	img, err := c.Frame()
	if err != nil {
		t.Fatalf("Frame after close = %v", err)
	}
	got := img.RGBAAt(3, 4)
	want := sim.PixelAt(7, 3, 4)
	if [4]byte{got.R, got.G, got.B, got.A} != want {
		t.Errorf("pixel (3,4) = %v, want %v", got, want)
	}

	n := c.FrameCount()
	win.EmitFrame(8)
	time.Sleep(50 * time.Millisecond)
	if c.FrameCount() != n {
		t.Fatal("frames delivered after target closed")
	}
}

func TestStopAbandonsWedgedThread(t *testing.T) {
	backend := sim.New()
	target := backend.AddMonitor(320, 240)
	backend.WedgeLoops()

	c := New(backend, Options{StopTimeout: 50 * time.Millisecond})
	if err := c.Start(monitorSpec(0), false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	target.EmitFrame(1)
	waitFor(t, "frame delivery", func() bool { return c.FrameCount() >= 1 })

	start := time.Now()
	c.Stop()
	elapsed := time.Since(start)

	// The quit message is dropped, so Stop must give up after the bounded
	// wait instead of hanging. The capture thread is abandoned.
	if elapsed > time.Second {
		t.Fatalf("Stop took %v with an unresponsive loop", elapsed)
	}
	if c.Active() {
		t.Fatal("capture active after abandoning Stop")
	}
	if _, err := c.Frame(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Frame after Stop = %v, want ErrNotRunning", err)
	}
}

func TestAwaitFirstFrame(t *testing.T) {
	backend := sim.New()
	target := backend.AddMonitor(320, 240)
	c := newTestCapture(t, backend)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				target.EmitFrame(9)
			}
		}
	}()

	if err := c.Start(monitorSpec(0), true); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Start only returns once a frame is in the mailbox.
	if _, err := c.Frame(); err != nil {
		t.Fatalf("Frame after awaited Start = %v", err)
	}
}
