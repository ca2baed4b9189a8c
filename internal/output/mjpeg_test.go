package output

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"
)

func TestWriteFrameRequiresStart(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 640, Height: 480})
	if err := m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 10, 10))); err == nil {
		t.Fatal("WriteFrame succeeded before Start")
	}
}

func TestWriteFrameEncodesAndCaches(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 640, Height: 480, JPEGQuality: 80})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	if m.LastFrame() != nil {
		t.Fatal("LastFrame non-nil before any write")
	}

	if err := m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 320, 240))); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	data := m.LastFrame()
	if data == nil {
		t.Fatal("LastFrame nil after write")
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("cached frame is not a JPEG: %v", err)
	}
	// Within the stream bounds: passed through at native size.
	if cfg.Width != 320 || cfg.Height != 240 {
		t.Fatalf("encoded %dx%d, want 320x240", cfg.Width, cfg.Height)
	}

	frames, clients, _ := m.Stats()
	if frames != 1 || clients != 0 {
		t.Fatalf("stats = %d frames %d clients", frames, clients)
	}
}

func TestWriteFrameScalesDownPreservingAspect(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 640, Height: 480})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	// 1920x1080 into 640x480: width is the binding constraint.
	if err := m.WriteFrame(image.NewRGBA(image.Rect(0, 0, 1920, 1080))); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(m.LastFrame()))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if cfg.Width != 640 || cfg.Height != 360 {
		t.Fatalf("scaled to %dx%d, want 640x360", cfg.Width, cfg.Height)
	}
}

func TestStopDisconnectsAndStops(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 100, Height: 100})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if m.IsRunning() {
		t.Fatal("running after Stop")
	}
	// Idempotent.
	if err := m.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}
