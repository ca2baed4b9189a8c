package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/framescope/framescope/internal/platform"
)

// surface is a CPU-backed stand-in for a GPU texture. Allocated size may be
// larger than any content size reported with it, and pitch carries the
// configured right-edge padding.
type surface struct {
	size  platform.Size
	pitch int
	data  []byte
}

func (s *surface) Size() platform.Size { return s.size }

// framePool holds at most one pending surface, newest wins.
type framePool struct {
	backend *Backend

	mu      sync.Mutex
	size    platform.Size // allocated surface size
	pending *platform.SurfaceFrame
	cbs     map[platform.Token]func()
	closed  bool
}

func (p *framePool) FrameArrived(fn func()) (platform.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cbs == nil {
		p.cbs = make(map[platform.Token]func())
	}
	tok := nextToken()
	p.cbs[tok] = fn
	return tok, nil
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
		return platform.SurfaceFrame{}, errors.New("sim: no frame pending")
	}
	f := *p.pending
	p.pending = nil
	return f, nil
}

func (p *framePool) Recreate(size platform.Size) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("sim: frame pool closed")
	}
	p.size = size
	p.pending = nil // surfaces from the old pool are invalid
	return nil
}

func (p *framePool) CreateSession(item platform.Item) (platform.Session, error) {
	t, ok := item.(*Target)
	if !ok {
		return nil, fmt.Errorf("sim: item %T is not a sim target", item)
	}
	return &session{pool: p, target: t}, nil
}

func (p *framePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.pending = nil
	return nil
}

// emit snapshots a surface for the given content size and fires the
// frame-arrived callbacks on the event loop. Surfaces are allocated at the
// pool size, which can exceed the content size after a resize; the pixel
// generator fills the whole allocation so the crop path is observable.
func (p *framePool) emit(seed byte, content platform.Size) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	alloc := p.size
	pitch := alloc.Width*4 + p.backend.RowPadding
	s := &surface{
		size:  alloc,
		pitch: pitch,
		data:  renderPattern(seed, alloc, pitch),
	}
	p.pending = &platform.SurfaceFrame{Surface: s, ContentSize: content}
	cbs := make([]func(), 0, len(p.cbs))
	for _, fn := range p.cbs {
		cbs = append(cbs, fn)
	}
	p.mu.Unlock()

	p.backend.postToLoop(func() {
		for _, fn := range cbs {
			fn()
		}
	})
}

// renderPattern fills an allocation with a deterministic per-pixel pattern.
// Padding bytes are poisoned with 0xEE so an uncropped read is detectable.
func renderPattern(seed byte, alloc platform.Size, pitch int) []byte {
	data := make([]byte, alloc.Height*pitch)
	for i := range data {
		data[i] = 0xEE
	}
	for y := 0; y < alloc.Height; y++ {
		row := data[y*pitch:]
		for x := 0; x < alloc.Width; x++ {
			row[x*4+0] = seed
			row[x*4+1] = byte(x)
			row[x*4+2] = byte(y)
			row[x*4+3] = 0xFF
		}
	}
	return data
}

// PixelAt reports the expected materialized RGBA value for a pattern pixel.
// Test helper; keeps the generator and the assertions in one place.
func PixelAt(seed byte, x, y int) [4]byte {
	return [4]byte{seed, byte(x), byte(y), 0xFF}
}

type session struct {
	pool   *framePool
	target *Target

	mu      sync.Mutex
	started bool
	closed  bool
}

func (s *session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("sim: session already started")
	}
	if s.closed {
		return errors.New("sim: session closed")
	}
	if s.target.closed.Load() {
		return platform.ErrTargetInvalid
	}
	s.started = true
	s.target.attach(s)
	return nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.target.detach(s)
	return nil
}

type device struct {
	mu     sync.Mutex
	closed bool
}

func (d *device) ReadSurface(sf platform.Surface) (platform.Mapping, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return platform.Mapping{}, errors.New("sim: device closed")
	}
	s, ok := sf.(*surface)
	if !ok {
		return platform.Mapping{}, fmt.Errorf("sim: surface %T is not a sim surface", sf)
	}
	// Staging copy: the caller owns the returned bytes.
	data := make([]byte, len(s.data))
	copy(data, s.data)
	return platform.Mapping{RowPitch: s.pitch, Data: data}, nil
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
