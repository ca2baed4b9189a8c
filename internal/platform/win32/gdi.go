//go:build windows

package win32

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/framescope/framescope/internal/logger"
	"github.com/framescope/framescope/internal/platform"
)

type bitmapInfoHeader struct {
	size          uint32
	width         int32
	height        int32
	planes        uint16
	bitCount      uint16
	compression   uint32
	sizeImage     uint32
	xPelsPerMeter int32
	yPelsPerMeter int32
	clrUsed       uint32
	clrImportant  uint32
}

// surface holds one GDI snapshot in DIB byte order (BGRA, top-down).
// ReadSurface converts to RGBA.
type surface struct {
	size  platform.Size
	pitch int
	data  []byte
}

func (s *surface) Size() platform.Size { return s.size }

// framePool produces surfaces from a thread timer. The WM_TIMER handler runs
// on the capture thread, so the snapshot and the frame-arrived callbacks stay
// serialized with the message loop.
type framePool struct {
	backend *Backend
	loop    *eventLoop

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
		return platform.SurfaceFrame{}, errors.New("win32: no frame pending")
	}
	f := *p.pending
	p.pending = nil
	return f, nil
}

func (p *framePool) Recreate(size platform.Size) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("win32: frame pool closed")
	}
	p.size = size
	p.pending = nil
	return nil
}

func (p *framePool) CreateSession(i platform.Item) (platform.Session, error) {
	it, ok := i.(*item)
	if !ok {
		return nil, fmt.Errorf("win32: item %T is not a win32 target", i)
	}
	return &session{pool: p, item: it}, nil
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

// session owns the thread timer for one target.
type session struct {
	pool *framePool
	item *item

	mu      sync.Mutex
	started bool
	closed  bool
	timer   uintptr
}

// Start arms the capture timer. Must run on the capture thread, before the
// message loop starts pumping, so the timer lands in that thread's queue.
func (s *session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("win32: session already started")
	}
	if s.closed {
		return errors.New("win32: session closed")
	}
	if _, err := s.item.Size(); err != nil {
		return err
	}

	id, err := s.pool.loop.setTimer(1000/s.pool.backend.fps, s.tick)
	if err != nil {
		return err
	}
	s.timer = id
	s.started = true
	return nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.timer != 0 {
		s.pool.loop.killTimer(s.timer)
		s.timer = 0
	}
	return nil
}

// tick snapshots the target. Runs on the capture thread via WM_TIMER.
func (s *session) tick() {
	log := logger.WithComponent("win32-capture")

	if !s.item.alive() {
		log.Debug().Msg("Target window gone, treating as closed")
		s.Close()
		s.item.fireClosed()
		return
	}

	size, err := s.item.Size()
	if err != nil {
		log.Debug().Err(err).Msg("Target size lookup failed, treating as closed")
		s.Close()
		s.item.fireClosed()
		return
	}

	data, pitch, err := s.item.grab(size)
	if err != nil {
		log.Debug().Err(err).Msg("Snapshot failed, skipping frame")
		return
	}

	s.pool.deposit(&surface{size: size, pitch: pitch, data: data}, size)
}

// grab blits the target into a top-down 32bpp DIB section and copies the
// bits out. Windows are rendered with PrintWindow so obscured content still
// comes through; monitors blit from the screen DC at the monitor origin.
func (it *item) grab(size platform.Size) ([]byte, int, error) {
	var srcDC uintptr
	if it.hwnd != 0 {
		srcDC, _, _ = procGetDC.Call(it.hwnd)
	} else {
		srcDC, _, _ = procGetDC.Call(0)
	}
	if srcDC == 0 {
		return nil, 0, errors.New("win32: GetDC failed")
	}
	defer procReleaseDC.Call(it.hwnd, srcDC)

	memDC, _, _ := procCreateCompatibleDC.Call(srcDC)
	if memDC == 0 {
		return nil, 0, errors.New("win32: CreateCompatibleDC failed")
	}
	defer procDeleteDC.Call(memDC)

	hdr := bitmapInfoHeader{
		size:        uint32(unsafe.Sizeof(bitmapInfoHeader{})),
		width:       int32(size.Width),
		height:      -int32(size.Height), // top-down
		planes:      1,
		bitCount:    32,
		compression: biRGB,
	}
	var bits unsafe.Pointer
	bitmap, _, _ := procCreateDIBSection.Call(
		memDC,
		uintptr(unsafe.Pointer(&hdr)),
		dibRGBColors,
		uintptr(unsafe.Pointer(&bits)),
		0, 0,
	)
	if bitmap == 0 || bits == nil {
		return nil, 0, errors.New("win32: CreateDIBSection failed")
	}
	defer procDeleteObject.Call(bitmap)

	prev, _, _ := procSelectObject.Call(memDC, bitmap)
	defer procSelectObject.Call(memDC, prev)

	if it.hwnd != 0 {
		ret, _, _ := procPrintWindow.Call(it.hwnd, memDC, pwRenderFull)
		if ret == 0 {
			// Some windows refuse PrintWindow; fall back to a plain blit of
			// whatever is on screen.
			ret, _, _ = procBitBlt.Call(memDC, 0, 0,
				uintptr(size.Width), uintptr(size.Height),
				srcDC, 0, 0, srcCopy)
			if ret == 0 {
				return nil, 0, errors.New("win32: BitBlt failed")
			}
		}
	} else {
		ret, _, _ := procBitBlt.Call(memDC, 0, 0,
			uintptr(size.Width), uintptr(size.Height),
			srcDC, uintptr(it.origin.X), uintptr(it.origin.Y),
			srcCopy|captureBlt)
		if ret == 0 {
			return nil, 0, errors.New("win32: BitBlt failed")
		}
	}

	// 32bpp rows are naturally DWORD aligned.
	pitch := size.Width * 4
	src := unsafe.Slice((*byte)(bits), size.Height*pitch)
	data := make([]byte, len(src))
	copy(data, src)
	return data, pitch, nil
}

// device converts mapped DIB snapshots from BGRA to RGBA.
type device struct{}

func (d *device) ReadSurface(sf platform.Surface) (platform.Mapping, error) {
	s, ok := sf.(*surface)
	if !ok {
		return platform.Mapping{}, fmt.Errorf("win32: surface %T is not a win32 surface", sf)
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
