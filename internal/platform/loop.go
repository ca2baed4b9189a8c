package platform

import "sync"

// ChanLoop is a channel-backed EventLoop for backends without a native
// per-thread message queue (sim, x11). The win32 backend uses the real user32
// queue instead.
type ChanLoop struct {
	mu     sync.Mutex
	msgs   chan chanMsg
	exited bool
}

type chanMsg struct {
	fn   func()
	quit bool
}

// NewChanLoop creates a loop with a bounded message queue. Queue depth only
// bounds burst delivery; producers never block on a full queue (messages are
// dropped, mirroring a torn-down native queue).
func NewChanLoop(depth int) *ChanLoop {
	if depth <= 0 {
		depth = 64
	}
	return &ChanLoop{msgs: make(chan chanMsg, depth)}
}

// Run pumps posted messages until a quit message arrives or stop reports
// true. The stop flag is checked once per delivered message, before dispatch.
func (l *ChanLoop) Run(stop func() bool) error {
	defer func() {
		l.mu.Lock()
		l.exited = true
		l.mu.Unlock()
	}()

	for msg := range l.msgs {
		if msg.quit || stop() {
			return nil
		}
		if msg.fn != nil {
			msg.fn()
		}
	}
	return nil
}

// Post injects a message invoking fn on the loop thread.
func (l *ChanLoop) Post(fn func()) {
	l.post(chanMsg{fn: fn})
}

// PostQuit injects the quit sentinel.
func (l *ChanLoop) PostQuit() {
	l.post(chanMsg{quit: true})
}

func (l *ChanLoop) post(msg chanMsg) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.exited {
		return
	}
	select {
	case l.msgs <- msg:
	default:
		// Queue full or no longer drained. The wake may be lost; callers
		// with liveness requirements pair posting with a bounded wait.
	}
}
