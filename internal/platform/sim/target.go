package sim

import (
	"sync"
	"sync/atomic"

	"github.com/framescope/framescope/internal/platform"
)

var tokenSeq atomic.Uint64

func nextToken() platform.Token {
	return platform.Token(tokenSeq.Add(1))
}

// Target is a simulated monitor or window. Tests and demos drive the
// pipeline through EmitFrame, Resize and Close; all three deliver their
// events through the capture thread's event loop, the way the real facility
// serializes callbacks.
type Target struct {
	kind platform.TargetKind
	name string

	mu        sync.Mutex
	size      platform.Size
	session   *session
	closedCbs map[platform.Token]func()

	closed atomic.Bool
}

func newTarget(kind platform.TargetKind, name string, width, height int) *Target {
	return &Target{
		kind:      kind,
		name:      name,
		size:      platform.Size{Width: width, Height: height},
		closedCbs: make(map[platform.Token]func()),
	}
}

// Size reports the target's current content size.
func (t *Target) Size() (platform.Size, error) {
	if t.closed.Load() {
		return platform.Size{}, platform.ErrTargetInvalid
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size, nil
}

// Closed registers a target-closed callback.
func (t *Target) Closed(fn func()) (platform.Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tok := nextToken()
	t.closedCbs[tok] = fn
	return tok, nil
}

// RemoveClosed removes a target-closed callback.
func (t *Target) RemoveClosed(tok platform.Token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.closedCbs, tok)
}

// Resize changes the target's content size. The next emitted frame carries
// the new size.
func (t *Target) Resize(width, height int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.size = platform.Size{Width: width, Height: height}
}

// EmitFrame produces one captured frame. The surface pixels are a
// deterministic function of seed and position; padding bytes are poisoned so
// a missing crop shows up in image content. No-op when no session is active.
func (t *Target) EmitFrame(seed byte) {
	t.mu.Lock()
	sess := t.session
	content := t.size
	t.mu.Unlock()

	if t.closed.Load() || sess == nil {
		return
	}
	sess.pool.emit(seed, content)
}

// Close marks the target gone and fires the closed callbacks on the capture
// thread's event loop.
func (t *Target) Close() {
	if t.closed.Swap(true) {
		return
	}
	t.mu.Lock()
	cbs := make([]func(), 0, len(t.closedCbs))
	for _, fn := range t.closedCbs {
		cbs = append(cbs, fn)
	}
	sess := t.session
	t.mu.Unlock()

	if sess == nil {
		return
	}
	sess.pool.backend.postToLoop(func() {
		for _, fn := range cbs {
			fn()
		}
	})
}

func (t *Target) attach(s *session) {
	t.mu.Lock()
	t.session = s
	t.mu.Unlock()
}

func (t *Target) detach(s *session) {
	t.mu.Lock()
	if t.session == s {
		t.session = nil
	}
	t.mu.Unlock()
}
