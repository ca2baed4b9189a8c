package sim

import (
	"errors"
	"testing"

	"github.com/framescope/framescope/internal/platform"
)

func TestResolveMonitor(t *testing.T) {
	b := New()
	first := b.AddMonitor(1920, 1080)
	second := b.AddMonitor(1280, 1024)

	// Index 0 selects the primary (first) monitor.
	it, err := b.Resolve(platform.TargetSpec{Kind: platform.TargetMonitor})
	if err != nil {
		t.Fatalf("Resolve primary failed: %v", err)
	}
	if it != first {
		t.Fatal("primary resolve did not return the first monitor")
	}

	it, err = b.Resolve(platform.TargetSpec{Kind: platform.TargetMonitor, Monitor: 2})
	if err != nil {
		t.Fatalf("Resolve monitor 2 failed: %v", err)
	}
	if it != second {
		t.Fatal("resolve did not return the second monitor")
	}

	_, err = b.Resolve(platform.TargetSpec{Kind: platform.TargetMonitor, Monitor: 3})
	if !errors.Is(err, platform.ErrTargetNotFound) {
		t.Fatalf("Resolve missing monitor = %v, want ErrTargetNotFound", err)
	}
}

func TestResolveWindow(t *testing.T) {
	b := New()
	win := b.AddWindow("terminal", 800, 600)

	it, err := b.Resolve(platform.TargetSpec{Kind: platform.TargetWindow, WindowTitle: "terminal"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if it != win {
		t.Fatal("resolve did not return the window target")
	}

	_, err = b.Resolve(platform.TargetSpec{Kind: platform.TargetWindow, WindowTitle: "missing"})
	if !errors.Is(err, platform.ErrTargetNotFound) {
		t.Fatalf("Resolve missing window = %v, want ErrTargetNotFound", err)
	}

	win.Close()
	_, err = b.Resolve(platform.TargetSpec{Kind: platform.TargetWindow, WindowTitle: "terminal"})
	if !errors.Is(err, platform.ErrTargetInvalid) {
		t.Fatalf("Resolve closed window = %v, want ErrTargetInvalid", err)
	}
}

func TestEnumeration(t *testing.T) {
	b := New()
	b.AddMonitor(1920, 1080)
	b.AddWindow("one", 100, 100)
	closed := b.AddWindow("two", 200, 200)
	closed.Close()

	mons, err := b.Monitors()
	if err != nil || len(mons) != 1 {
		t.Fatalf("Monitors = %v, %v; want one entry", mons, err)
	}
	if mons[0].Monitor != 1 || mons[0].Size.Width != 1920 {
		t.Fatalf("monitor entry = %+v", mons[0])
	}

	wins, err := b.Windows()
	if err != nil || len(wins) != 1 {
		t.Fatalf("Windows = %v, %v; want the open window only", wins, err)
	}
	if wins[0].Title != "one" {
		t.Fatalf("window entry = %+v", wins[0])
	}
}

func TestRenderPatternPoisonsPadding(t *testing.T) {
	alloc := platform.Size{Width: 3, Height: 2}
	pitch := alloc.Width*4 + 8
	data := renderPattern(0x42, alloc, pitch)

	if len(data) != alloc.Height*pitch {
		t.Fatalf("pattern holds %d bytes, want %d", len(data), alloc.Height*pitch)
	}
	for y := 0; y < alloc.Height; y++ {
		row := data[y*pitch:]
		for x := 0; x < alloc.Width; x++ {
			want := PixelAt(0x42, x, y)
			got := [4]byte{row[x*4], row[x*4+1], row[x*4+2], row[x*4+3]}
			if got != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
			}
		}
		for i := alloc.Width * 4; i < pitch; i++ {
			if row[i] != 0xEE {
				t.Fatalf("padding byte %d in row %d = %#x, want poison", i, y, row[i])
			}
		}
	}
}

func TestDeviceReadSurfaceCopies(t *testing.T) {
	d := &device{}
	s := &surface{
		size:  platform.Size{Width: 2, Height: 1},
		pitch: 8,
		data:  []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}

	m, err := d.ReadSurface(s)
	if err != nil {
		t.Fatalf("ReadSurface failed: %v", err)
	}
	if m.RowPitch != 8 || len(m.Data) != 8 {
		t.Fatalf("mapping = pitch %d len %d", m.RowPitch, len(m.Data))
	}

	// The caller owns the mapping; mutating it must not reach the surface.
	m.Data[0] = 0xFF
	if s.data[0] != 1 {
		t.Fatal("mapping aliases the surface buffer")
	}

	d.Close()
	if _, err := d.ReadSurface(s); err == nil {
		t.Fatal("ReadSurface succeeded on a closed device")
	}
}
