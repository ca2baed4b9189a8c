//go:build linux

// Package x11 implements the platform boundary on X11/XWayland using the
// BurntSushi/xgb bindings. X11 has no composition frame-pool facility, so
// frame cadence comes from a timer posting capture work into the event loop;
// surfaces are ZPixmap snapshots taken with the Composite extension when it
// is available.
package x11

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/framescope/framescope/internal/logger"
	"github.com/framescope/framescope/internal/platform"
)

// Backend implements platform.Backend against an X display.
type Backend struct {
	fps int

	mu               sync.Mutex
	conn             *xgb.Conn
	root             xproto.Window
	screen           *xproto.ScreenInfo
	compositeEnabled bool
	loop             *platform.ChanLoop
}

// New creates an X11 backend. fps sets the timer-driven frame cadence.
func New(fps int) *Backend {
	if fps <= 0 {
		fps = 30
	}
	return &Backend{fps: fps}
}

func (b *Backend) Name() string { return "x11" }

// Initialize connects to the X server and probes the Composite extension.
// Runs on the capture thread.
func (b *Backend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return nil
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	log := logger.WithComponent("x11-backend")
	compositeEnabled := true
	if err := composite.Init(conn); err != nil {
		log.Warn().Err(err).Msg("Composite extension not available, captures may miss obscured windows")
		compositeEnabled = false
	}

	b.conn = conn
	b.root = screen.Root
	b.screen = screen
	b.compositeEnabled = compositeEnabled
	return nil
}

// Uninitialize closes the X connection.
func (b *Backend) Uninitialize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// NewDevice validates that the root visual is materializable. The pixel
// conversion happens in ReadSurface.
func (b *Backend) NewDevice() (platform.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil, platform.ErrUnsupported
	}
	depth := int(b.screen.RootDepth)
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("root depth %d: %w", depth, platform.ErrFeatureLevelNotSatisfied)
	}
	return &device{}, nil
}

func (b *Backend) NewEventLoop() (platform.EventLoop, error) {
	l := platform.NewChanLoop(64)
	b.mu.Lock()
	b.loop = l
	b.mu.Unlock()
	return l, nil
}

func (b *Backend) NewFramePool(dev platform.Device, format platform.PixelFormat, frames int, size platform.Size) (platform.FramePool, error) {
	if format != platform.RGBA8 {
		return nil, fmt.Errorf("x11: unsupported pixel format %s", format)
	}
	b.mu.Lock()
	loop := b.loop
	b.mu.Unlock()
	if loop == nil {
		return nil, fmt.Errorf("x11: frame pool requires an event loop")
	}
	return &framePool{backend: b, loop: loop, size: size}, nil
}

// Resolve maps a target spec to an X drawable. Monitors capture the root
// window; windows are matched by exact title first, then substring.
func (b *Backend) Resolve(spec platform.TargetSpec) (platform.Item, error) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		// Resolution can happen before the capture thread initialized the
		// subsystem; bring the connection up on the calling thread.
		if err := b.Initialize(); err != nil {
			return nil, err
		}
	}

	switch spec.Kind {
	case platform.TargetMonitor:
		return &item{backend: b, window: b.root, isRoot: true}, nil
	case platform.TargetWindow:
		win, err := b.findWindowByTitle(spec.WindowTitle)
		if err != nil {
			return nil, err
		}
		return &item{backend: b, window: win}, nil
	default:
		return nil, fmt.Errorf("x11: unknown target kind %q", spec.Kind)
	}
}

// Monitors reports the X screen as a single monitor. Per-output geometry
// needs RandR, which the capture path does not depend on.
func (b *Backend) Monitors() ([]platform.TargetInfo, error) {
	if err := b.Initialize(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return []platform.TargetInfo{{
		Kind:    platform.TargetMonitor,
		Monitor: 1,
		Size: platform.Size{
			Width:  int(b.screen.WidthInPixels),
			Height: int(b.screen.HeightInPixels),
		},
	}}, nil
}

// Windows enumerates titled top-level windows from the root tree.
func (b *Backend) Windows() ([]platform.TargetInfo, error) {
	if err := b.Initialize(); err != nil {
		return nil, err
	}

	tree, err := xproto.QueryTree(b.conn, b.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to query window tree: %w", err)
	}

	infos := make([]platform.TargetInfo, 0, len(tree.Children))
	for _, child := range tree.Children {
		attrs, err := xproto.GetWindowAttributes(b.conn, child).Reply()
		if err != nil || attrs.MapState != xproto.MapStateViewable {
			continue
		}
		title := b.windowTitle(child)
		if title == "" {
			continue
		}
		geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(child)).Reply()
		if err != nil {
			continue
		}
		infos = append(infos, platform.TargetInfo{
			Kind:  platform.TargetWindow,
			Title: title,
			Size:  platform.Size{Width: int(geom.Width), Height: int(geom.Height)},
		})
	}
	return infos, nil
}

func (b *Backend) findWindowByTitle(title string) (xproto.Window, error) {
	tree, err := xproto.QueryTree(b.conn, b.root).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to query window tree: %w", err)
	}

	var substrMatch xproto.Window
	for _, child := range tree.Children {
		t := b.windowTitle(child)
		if t == "" {
			continue
		}
		if t == title {
			return child, nil
		}
		if substrMatch == 0 && strings.Contains(t, title) {
			substrMatch = child
		}
	}
	if substrMatch != 0 {
		return substrMatch, nil
	}
	return 0, fmt.Errorf("x11: window %q: %w", title, platform.ErrTargetNotFound)
}

// windowTitle reads _NET_WM_NAME, falling back to WM_NAME.
func (b *Backend) windowTitle(win xproto.Window) string {
	for _, name := range []string{"_NET_WM_NAME", "WM_NAME"} {
		atom, err := b.getAtom(name)
		if err != nil {
			continue
		}
		reply, err := xproto.GetProperty(
			b.conn, false, win, atom, xproto.GetPropertyTypeAny, 0, (1<<32)-1,
		).Reply()
		if err != nil || reply.ValueLen == 0 {
			continue
		}
		return string(reply.Value)
	}
	return ""
}

func (b *Backend) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// item is a resolved X drawable target.
type item struct {
	backend *Backend
	window  xproto.Window
	isRoot  bool

	mu     sync.Mutex
	cbs    map[platform.Token]func()
	nextID platform.Token
}

func (it *item) Size() (platform.Size, error) {
	geom, err := xproto.GetGeometry(it.backend.conn, xproto.Drawable(it.window)).Reply()
	if err != nil {
		return platform.Size{}, fmt.Errorf("x11: %w: %v", platform.ErrTargetInvalid, err)
	}
	return platform.Size{Width: int(geom.Width), Height: int(geom.Height)}, nil
}

func (it *item) Closed(fn func()) (platform.Token, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.cbs == nil {
		it.cbs = make(map[platform.Token]func())
	}
	it.nextID++
	it.cbs[it.nextID] = fn
	return it.nextID, nil
}

func (it *item) RemoveClosed(tok platform.Token) {
	it.mu.Lock()
	defer it.mu.Unlock()
	delete(it.cbs, tok)
}

// fireClosed invokes the registered callbacks. Runs on the capture thread.
func (it *item) fireClosed() {
	it.mu.Lock()
	cbs := make([]func(), 0, len(it.cbs))
	for _, fn := range it.cbs {
		cbs = append(cbs, fn)
	}
	it.mu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}
