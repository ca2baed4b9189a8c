//go:build linux

package x11

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/framescope/framescope/internal/logger"
	"github.com/framescope/framescope/internal/platform"
)

// surface holds one ZPixmap snapshot in the server's BGRA byte order.
// ReadSurface converts to RGBA.
type surface struct {
	size  platform.Size
	pitch int
	data  []byte
}

func (s *surface) Size() platform.Size { return s.size }

// framePool produces surfaces on a timer. Each tick posts capture work into
// the event loop so the snapshot and the frame-arrived callback both run on
// the capture thread, the way the composition facility serializes delivery.
type framePool struct {
	backend *Backend
	loop    *platform.ChanLoop

	mu      sync.Mutex
	size    platform.Size
	pending *platform.SurfaceFrame
	cbs     map[platform.Token]func()
	nextID  platform.Token
	closed  bool
}

func (p *framePool) FrameArrived(fn func()) (platform.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cbs == nil {
		p.cbs = make(map[platform.Token]func())
	}
	p.nextID++
	p.cbs[p.nextID] = fn
	return p.nextID, nil
}

func (p *framePool) RemoveFrameArrived(tok platform.Token) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cbs, tok)
}

func (p *framePool) TryNextFrame() (platform.SurfaceFrame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return platform.SurfaceFrame{}, errors.New("x11: no frame pending")
	}
	f := *p.pending
	p.pending = nil
	return f, nil
}

func (p *framePool) Recreate(size platform.Size) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("x11: frame pool closed")
	}
	p.size = size
	p.pending = nil
	return nil
}

func (p *framePool) CreateSession(i platform.Item) (platform.Session, error) {
	it, ok := i.(*item)
	if !ok {
		return nil, fmt.Errorf("x11: item %T is not an x11 target", i)
	}
	return &session{pool: p, item: it, stop: make(chan struct{})}, nil
}

func (p *framePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.pending = nil
	return nil
}

// deposit stores the newest snapshot and fires the arrival callbacks. Runs
// on the capture thread.
func (p *framePool) deposit(s *surface, content platform.Size) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.pending = &platform.SurfaceFrame{Surface: s, ContentSize: content}
	cbs := make([]func(), 0, len(p.cbs))
	for _, fn := range p.cbs {
		cbs = append(cbs, fn)
	}
	p.mu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}

// session drives the capture timer for one target.
type session struct {
	pool *framePool
	item *item

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
}

func (s *session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("x11: session already started")
	}
	if s.closed {
		return errors.New("x11: session closed")
	}
	if _, err := s.item.Size(); err != nil {
		return err
	}
	s.started = true

	interval := time.Second / time.Duration(s.pool.backend.fps)
	go s.tickLoop(interval)
	return nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stop)
	return nil
}

// tickLoop posts one capture per interval into the event loop. The ticker
// goroutine never touches X itself; the posted closure does, on the capture
// thread.
func (s *session) tickLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.pool.loop.Post(s.captureOnce)
		}
	}
}

// captureOnce snapshots the target. Runs on the capture thread.
func (s *session) captureOnce() {
	b := s.pool.backend
	log := logger.WithComponent("x11-capture")

	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(s.item.window)).Reply()
	if err != nil {
		// The drawable is gone; treat as target closed and stop ticking.
		log.Debug().Err(err).Msg("Target geometry lookup failed, treating as closed")
		s.Close()
		s.item.fireClosed()
		return
	}

	data, err := s.grab(geom)
	if err != nil {
		log.Debug().Err(err).Msg("Snapshot failed, skipping frame")
		return
	}

	content := platform.Size{Width: int(geom.Width), Height: int(geom.Height)}
	s.pool.deposit(&surface{
		size:  content,
		pitch: content.Width * 4,
		data:  data,
	}, content)
}

// grab fetches ZPixmap bytes for the drawable, going through a Composite
// named pixmap when the extension is available so obscured windows still
// yield content.
func (s *session) grab(geom *xproto.GetGeometryReply) ([]byte, error) {
	b := s.pool.backend
	win := s.item.window
	drawable := xproto.Drawable(win)

	if b.compositeEnabled && !s.item.isRoot {
		if err := composite.RedirectWindowChecked(b.conn, win, composite.RedirectAutomatic).Check(); err == nil {
			defer composite.UnredirectWindow(b.conn, win, composite.RedirectAutomatic)
			if pixmap, err := xproto.NewPixmapId(b.conn); err == nil {
				if err := composite.NameWindowPixmapChecked(b.conn, win, pixmap).Check(); err == nil {
					defer xproto.FreePixmap(b.conn, pixmap)
					drawable = xproto.Drawable(pixmap)
				}
			}
		}
	}

	reply, err := xproto.GetImage(
		b.conn,
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		geom.Width, geom.Height,
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return reply.Data, nil
}

// device converts mapped X snapshots from BGRA to RGBA.
type device struct{}

func (d *device) ReadSurface(sf platform.Surface) (platform.Mapping, error) {
	s, ok := sf.(*surface)
	if !ok {
		return platform.Mapping{}, fmt.Errorf("x11: surface %T is not an x11 surface", sf)
	}

	out := make([]byte, len(s.data))
	for i := 0; i+3 < len(s.data); i += 4 {
		// BGRA to RGBA
		out[i+0] = s.data[i+2]
		out[i+1] = s.data[i+1]
		out[i+2] = s.data[i+0]
		out[i+3] = 0xFF
	}
	return platform.Mapping{RowPitch: s.pitch, Data: out}, nil
}

func (d *device) Close() error { return nil }
