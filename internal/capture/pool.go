package capture

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/framescope/framescope/internal/logger"
	"github.com/framescope/framescope/internal/platform"
)

// poolManager owns the frame pool + session pair for one capture run and
// reacts to the two asynchronous events the platform delivers on the capture
// thread: frame arrived and target closed. It never touches platform
// resources from the closed callback; teardown is single-sited in teardown(),
// invoked by the capture thread after the loop exits.
type poolManager struct {
	device  platform.Device
	pool    platform.FramePool
	session platform.Session
	item    platform.Item
	loop    platform.EventLoop
	mailbox *Mailbox

	stopRequested *atomic.Bool
	targetClosed  *atomic.Bool
	frames        *atomic.Int64

	lastSize   platform.Size
	frameToken platform.Token
	closeToken platform.Token

	log zerolog.Logger
}

// newPoolManager builds the pool + session for the item at its current size
// and registers both callbacks. Callers must invoke teardown exactly once.
func newPoolManager(backend platform.Backend, device platform.Device, loop platform.EventLoop,
	item platform.Item, format platform.PixelFormat, mailbox *Mailbox,
	stopRequested, targetClosed *atomic.Bool, frames *atomic.Int64) (*poolManager, error) {

	size, err := item.Size()
	if err != nil {
		return nil, fmt.Errorf("query target size: %w", err)
	}

	pool, err := backend.NewFramePool(device, format, 1, size)
	if err != nil {
		return nil, fmt.Errorf("create frame pool: %w", err)
	}

	session, err := pool.CreateSession(item)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create capture session: %w", err)
	}

	m := &poolManager{
		device:        device,
		pool:          pool,
		session:       session,
		item:          item,
		loop:          loop,
		mailbox:       mailbox,
		stopRequested: stopRequested,
		targetClosed:  targetClosed,
		frames:        frames,
		lastSize:      size,
		log: logger.WithComponent("frame-pool").With().
			Str("session_id", uuid.NewString()).Logger(),
	}

	m.closeToken, err = item.Closed(m.onClosed)
	if err != nil {
		session.Close()
		pool.Close()
		return nil, fmt.Errorf("register closed handler: %w", err)
	}

	m.frameToken, err = pool.FrameArrived(m.onFrameArrived)
	if err != nil {
		item.RemoveClosed(m.closeToken)
		session.Close()
		pool.Close()
		return nil, fmt.Errorf("register frame handler: %w", err)
	}

	m.log.Debug().Stringer("size", size).Msg("Frame pool created")
	return m, nil
}

// start begins frame delivery.
func (m *poolManager) start() error {
	return m.session.Start()
}

// onFrameArrived runs on the capture thread once per delivered frame. It must
// not block: the same thread services the stop protocol.
func (m *poolManager) onFrameArrived() {
	// A callback can be in flight when stop is requested; bail out before
	// touching the pool so teardown never races an OS call.
	if m.stopRequested.Load() {
		return
	}

	frame, err := m.pool.TryNextFrame()
	if err != nil {
		m.log.Debug().Err(err).Msg("Frame arrived but none pending")
		return
	}

	if frame.ContentSize != m.lastSize {
		// A resize never yields a deliverable frame; the first frame at the
		// new size arrives on the next callback.
		if err := m.pool.Recreate(frame.ContentSize); err != nil {
			m.log.Error().Err(err).Msg("Failed to recreate frame pool after resize")
			return
		}
		m.log.Debug().
			Stringer("from", m.lastSize).
			Stringer("to", frame.ContentSize).
			Msg("Target resized, frame pool recreated")
		m.lastSize = frame.ContentSize
		return
	}

	m.mailbox.Put(NewFrame(m.device, frame.Surface, frame.ContentSize))
	m.frames.Add(1)
}

// onClosed runs on the capture thread when the target disappears. It only
// flips flags and wakes the loop; resource teardown stays with the controller.
func (m *poolManager) onClosed() {
	m.log.Info().Msg("Capture target closed")
	m.targetClosed.Store(true)
	m.stopRequested.Store(true)
	m.loop.PostQuit()
}

// teardown releases per-run resources in strict order: callback
// registrations first, then the session, then the pool. Closing out of order
// risks a callback firing into released resources.
func (m *poolManager) teardown() {
	m.pool.RemoveFrameArrived(m.frameToken)
	m.item.RemoveClosed(m.closeToken)

	if err := m.session.Close(); err != nil {
		m.log.Warn().Err(err).Msg("Failed to close capture session")
	}
	if err := m.pool.Close(); err != nil {
		m.log.Warn().Err(err).Msg("Failed to close frame pool")
	}
}
