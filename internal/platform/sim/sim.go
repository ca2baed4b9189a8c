// Package sim is an in-process platform backend. Targets are created by the
// caller and emit frames, resizes and close events on demand; surfaces are
// plain byte buffers with configurable row padding so the materialization
// crop path sees realistic pitches. The capture test suites and the "sim"
// CLI backend run on it.
package sim

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/framescope/framescope/internal/platform"
)

// Backend implements platform.Backend with in-memory targets.
type Backend struct {
	mu       sync.Mutex
	monitors []*Target
	windows  []*Target

	// RowPadding is added to every surface row pitch beyond width*4,
	// emulating texture allocation padding. Defaults to 0.
	RowPadding int

	// wedged makes event loops drop quit messages, modelling a message
	// queue that was torn down before the wake arrived.
	wedged atomic.Bool

	loopMu sync.Mutex
	loop   *loop
}

// New creates an empty sim backend.
func New() *Backend {
	return &Backend{}
}

// AddMonitor registers a simulated monitor and returns its target handle.
func (b *Backend) AddMonitor(width, height int) *Target {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := newTarget(platform.TargetMonitor, fmt.Sprintf("sim-monitor-%d", len(b.monitors)+1), width, height)
	b.monitors = append(b.monitors, t)
	return t
}

// AddWindow registers a simulated window and returns its target handle.
func (b *Backend) AddWindow(title string, width, height int) *Target {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := newTarget(platform.TargetWindow, title, width, height)
	b.windows = append(b.windows, t)
	return t
}

// WedgeLoops makes every event loop created from now on ignore quit messages.
// Exercises the bounded-wait shutdown fallback.
func (b *Backend) WedgeLoops() {
	b.wedged.Store(true)
}

func (b *Backend) Name() string { return "sim" }

func (b *Backend) Initialize() error { return nil }

func (b *Backend) Uninitialize() {}

func (b *Backend) NewDevice() (platform.Device, error) {
	return &device{}, nil
}

func (b *Backend) NewEventLoop() (platform.EventLoop, error) {
	l := &loop{ChanLoop: platform.NewChanLoop(64), wedged: &b.wedged}
	b.loopMu.Lock()
	b.loop = l
	b.loopMu.Unlock()
	return l, nil
}

// postToLoop delivers fn to the capture thread's event loop, dropping it when
// no loop exists yet.
func (b *Backend) postToLoop(fn func()) {
	b.loopMu.Lock()
	l := b.loop
	b.loopMu.Unlock()
	if l != nil {
		l.Post(fn)
	}
}

func (b *Backend) NewFramePool(dev platform.Device, format platform.PixelFormat, frames int, size platform.Size) (platform.FramePool, error) {
	if format != platform.RGBA8 {
		return nil, fmt.Errorf("sim: unsupported pixel format %s", format)
	}
	return &framePool{backend: b, size: size}, nil
}

func (b *Backend) Resolve(spec platform.TargetSpec) (platform.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch spec.Kind {
	case platform.TargetMonitor:
		idx := spec.Monitor
		if idx == 0 {
			idx = 1
		}
		if idx < 1 || idx > len(b.monitors) {
			return nil, fmt.Errorf("sim: monitor %d: %w", idx, platform.ErrTargetNotFound)
		}
		return b.monitors[idx-1], nil
	case platform.TargetWindow:
		for _, t := range b.windows {
			if t.name == spec.WindowTitle {
				if t.closed.Load() {
					return nil, fmt.Errorf("sim: window %q: %w", spec.WindowTitle, platform.ErrTargetInvalid)
				}
				return t, nil
			}
		}
		return nil, fmt.Errorf("sim: window %q: %w", spec.WindowTitle, platform.ErrTargetNotFound)
	default:
		return nil, fmt.Errorf("sim: unknown target kind %q", spec.Kind)
	}
}

func (b *Backend) Monitors() ([]platform.TargetInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	infos := make([]platform.TargetInfo, 0, len(b.monitors))
	for i, t := range b.monitors {
		sz, _ := t.Size()
		infos = append(infos, platform.TargetInfo{Kind: platform.TargetMonitor, Monitor: i + 1, Size: sz})
	}
	return infos, nil
}

func (b *Backend) Windows() ([]platform.TargetInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	infos := make([]platform.TargetInfo, 0, len(b.windows))
	for _, t := range b.windows {
		if t.closed.Load() {
			continue
		}
		sz, _ := t.Size()
		infos = append(infos, platform.TargetInfo{Kind: platform.TargetWindow, Title: t.name, Size: sz})
	}
	return infos, nil
}

// loop wraps ChanLoop so a wedged backend can drop quit messages.
type loop struct {
	*platform.ChanLoop
	wedged *atomic.Bool
}

func (l *loop) PostQuit() {
	if l.wedged.Load() {
		return
	}
	l.ChanLoop.PostQuit()
}
