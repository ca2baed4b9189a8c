// Package capture implements the live capture pipeline: a controller owning
// a dedicated capture thread, a frame pool manager reacting to platform
// events on that thread, and a single-slot mailbox handing the newest frame
// to consumers.
package capture

import (
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/framescope/framescope/internal/logger"
	"github.com/framescope/framescope/internal/platform"
)

const (
	// DefaultPollInterval paces the consumer-side waits (await-first-frame
	// and the stop responsiveness check). These are not per-frame hot paths;
	// short fixed-interval polling keeps the protocol simple.
	DefaultPollInterval = 10 * time.Millisecond

	// DefaultStopTimeout bounds how long Stop waits for the capture thread
	// to acknowledge the quit message before abandoning it.
	DefaultStopTimeout = 100 * time.Millisecond
)

// Options tune a capture controller. Zero values select the defaults.
type Options struct {
	Format       platform.PixelFormat
	PollInterval time.Duration
	StopTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	return o
}

// Capture drives one capture session at a time against a platform backend.
// Start spawns the capture thread, Frame materializes the newest delivered
// frame, Stop shuts the thread down cooperatively. One session per
// controller: Start while active fails fast, restart requires Stop first.
type Capture struct {
	backend platform.Backend
	opts    Options
	mailbox *Mailbox
	log     zerolog.Logger

	mu  sync.Mutex
	run *runState
}

// runState holds the per-session lifecycle signals. stopRequested is the
// consumer-to-producer signal; loopExited is the producer-to-consumer signal
// that the event loop has actually returned. Both are advisory liveness
// flags, independently set and read.
type runState struct {
	loop platform.EventLoop
	done chan error

	stopRequested atomic.Bool
	loopExited    atomic.Bool
	targetClosed  atomic.Bool
	frames        atomic.Int64
}

type startResult struct {
	loop platform.EventLoop
	err  error
}

// New creates an idle controller bound to a backend.
func New(backend platform.Backend, opts Options) *Capture {
	return &Capture{
		backend: backend,
		opts:    opts.withDefaults(),
		mailbox: NewMailbox(),
		log:     *logger.WithComponent("capture"),
	}
}

// Start resolves the target and spawns the capture thread. Target resolution
// errors and early platform errors (subsystem init, device, pool, session)
// surface synchronously through the returned error; the thread hands them
// back over a one-shot channel before it exits.
//
// With awaitFirstFrame, Start blocks until a frame is in the mailbox or the
// session stopped early (target closed before any frame arrived) — the
// latter still returns nil, and Frame reports ErrNoFrameAvailable.
func (c *Capture) Start(spec platform.TargetSpec, awaitFirstFrame bool) error {
	c.mu.Lock()
	if c.run != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}

	item, err := c.backend.Resolve(spec)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("resolve %s: %w", spec, err)
	}

	rs := &runState{done: make(chan error, 1)}
	ready := make(chan startResult, 1)
	go c.captureThread(item, rs, ready)

	res := <-ready
	if res.err != nil {
		c.mu.Unlock()
		return res.err
	}
	rs.loop = res.loop
	c.run = rs
	c.mu.Unlock()

	c.log.Info().Stringer("target", spec).Str("backend", c.backend.Name()).Msg("Capture started")

	if awaitFirstFrame {
		for c.mailbox.Peek() == nil && !rs.stopRequested.Load() {
			time.Sleep(c.opts.PollInterval)
		}
	}
	return nil
}

// captureThread is the dedicated producer thread. The platform message loop
// and its callbacks require thread affinity, so the goroutine is pinned to
// an OS thread for its whole life.
func (c *Capture) captureThread(item platform.Item, rs *runState, ready chan<- startResult) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	fail := func(err error) {
		rs.loopExited.Store(true)
		ready <- startResult{err: err}
		rs.done <- err
	}

	if err := c.backend.Initialize(); err != nil {
		fail(fmt.Errorf("initialize capture subsystem: %w", err))
		return
	}

	device, err := c.backend.NewDevice()
	if err != nil {
		c.backend.Uninitialize()
		fail(fmt.Errorf("create graphics device: %w", err))
		return
	}

	loop, err := c.backend.NewEventLoop()
	if err != nil {
		device.Close()
		c.backend.Uninitialize()
		fail(fmt.Errorf("create event loop: %w", err))
		return
	}

	mgr, err := newPoolManager(c.backend, device, loop, item, c.opts.Format,
		c.mailbox, &rs.stopRequested, &rs.targetClosed, &rs.frames)
	if err != nil {
		device.Close()
		c.backend.Uninitialize()
		fail(err)
		return
	}

	if err := mgr.start(); err != nil {
		mgr.teardown()
		device.Close()
		c.backend.Uninitialize()
		fail(fmt.Errorf("start capture session: %w", err))
		return
	}

	ready <- startResult{loop: loop}

	runErr := loop.Run(rs.stopRequested.Load)
	rs.loopExited.Store(true)

	// Teardown stays on this thread, after the loop has exited, so no
	// callback can race the releases.
	mgr.teardown()
	device.Close()
	c.backend.Uninitialize()

	rs.done <- runErr
}

// Active reports whether a capture thread handle is held. It stays true
// after the target closed until Stop runs, even though no new frames arrive.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run != nil
}

// Frame materializes the newest captured frame into an RGBA image of exactly
// content width x height. The frame stays in the mailbox, so repeated calls
// between arrivals return the same (cached) image.
func (c *Capture) Frame() (*image.RGBA, error) {
	c.mu.Lock()
	rs := c.run
	c.mu.Unlock()

	if rs == nil {
		return nil, ErrNotRunning
	}
	f := c.mailbox.Peek()
	if f == nil {
		return nil, ErrNoFrameAvailable
	}
	return f.Materialize()
}

// FrameCount reports how many frames the current session has delivered into
// the mailbox. Zero when idle.
func (c *Capture) FrameCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return 0
	}
	return c.run.frames.Load()
}

// TargetClosed reports whether the platform signalled the capture target
// gone during the current session.
func (c *Capture) TargetClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return false
	}
	return c.run.targetClosed.Load()
}

// Stop requests the capture thread exit and waits, bounded, for it to
// comply. The message loop can only be unblocked from within its own queue,
// so Stop posts a quit message and then polls the loop-exited flag. When the
// thread turns responsive within the timeout it is joined; otherwise Stop
// returns anyway — a target that vanished uncooperatively can leave the
// queue torn down with the wake undeliverable, and hanging the caller is
// worse than leaking the thread. The mailbox is cleared either way.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	rs := c.run
	if rs == nil {
		return
	}

	rs.stopRequested.Store(true)
	rs.loop.PostQuit()

	responsive := rs.loopExited.Load()
	deadline := time.Now().Add(c.opts.StopTimeout)
	for !responsive && time.Now().Before(deadline) {
		time.Sleep(c.opts.StopTimeout / 20)
		responsive = rs.loopExited.Load()
	}

	if responsive {
		if err := <-rs.done; err != nil {
			c.log.Warn().Err(err).Msg("Capture thread exited with error")
		}
	} else {
		c.log.Warn().
			Dur("timeout", c.opts.StopTimeout).
			Msg("Capture thread unresponsive on stop, abandoning it")
	}

	c.run = nil
	c.mailbox.Clear()
	c.log.Info().Msg("Capture stopped")
}

// Close stops any active capture. The capture thread and platform subsystem
// handle must never outlive the controller.
func (c *Capture) Close() {
	c.Stop()
}
