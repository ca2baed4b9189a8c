package capture

import (
	"sync"
	"testing"

	"github.com/framescope/framescope/internal/platform"
)

func testFrame(w, h int) *Frame {
	return NewFrame(nil, nil, platform.Size{Width: w, Height: h})
}

func TestMailboxNewestWins(t *testing.T) {
	m := NewMailbox()

	if m.Peek() != nil {
		t.Fatal("new mailbox not empty")
	}

	first := testFrame(100, 100)
	second := testFrame(200, 200)
	m.Put(first)
	m.Put(second)

	if got := m.Peek(); got != second {
		t.Fatalf("Peek = %v, want the newest frame", got)
	}
	// Peek does not consume.
	if got := m.Peek(); got != second {
		t.Fatalf("second Peek = %v, want the same frame", got)
	}

	if got := m.Take(); got != second {
		t.Fatalf("Take = %v, want the newest frame", got)
	}
	if m.Take() != nil {
		t.Fatal("Take on empty mailbox returned a frame")
	}
}

func TestMailboxClear(t *testing.T) {
	m := NewMailbox()
	m.Put(testFrame(10, 10))
	m.Clear()
	if m.Peek() != nil {
		t.Fatal("mailbox not empty after Clear")
	}
}

func TestMailboxConcurrentPutPeek(t *testing.T) {
	m := NewMailbox()
	frames := make([]*Frame, 64)
	for i := range frames {
		frames[i] = testFrame(i+1, i+1)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, f := range frames {
			m.Put(f)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < len(frames); i++ {
			m.Peek()
			m.Take()
		}
	}()
	wg.Wait()

	// Whatever remains is either nil or the last deposit.
	if f := m.Peek(); f != nil && f != frames[len(frames)-1] {
		t.Fatalf("mailbox holds %v, want nil or the final frame", f)
	}
}
