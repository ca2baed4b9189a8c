package capture

import "sync"

// Mailbox is the single-slot, newest-wins container bridging the capture
// thread and consumer threads. Put overwrites unconditionally; there is no
// queueing because a live consumer only ever wants the most recent frame.
// The slot's mutex is the only lock shared across those threads and is never
// held during a platform call.
type Mailbox struct {
	mu    sync.Mutex
	frame *Frame
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Put deposits a frame, discarding any unread previous one.
func (m *Mailbox) Put(f *Frame) {
	m.mu.Lock()
	m.frame = f
	m.mu.Unlock()
}

// Peek returns the current frame without removing it, or nil.
func (m *Mailbox) Peek() *Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

// Take removes and returns the current frame, or nil.
func (m *Mailbox) Take() *Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.frame
	m.frame = nil
	return f
}

// Clear empties the slot.
func (m *Mailbox) Clear() {
	m.mu.Lock()
	m.frame = nil
	m.mu.Unlock()
}
