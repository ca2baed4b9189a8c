package platform

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestChanLoopRunsPostedInOrder(t *testing.T) {
	l := NewChanLoop(8)

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.PostQuit()

	done := make(chan error, 1)
	go func() { done <- l.Run(func() bool { return false }) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit on quit")
	}

	if len(got) != 5 {
		t.Fatalf("ran %d messages, want 5", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("message order %v, want ascending", got)
		}
	}
}

func TestChanLoopStopFlagExitsOnNextMessage(t *testing.T) {
	l := NewChanLoop(8)
	var stopped atomic.Bool

	done := make(chan struct{})
	go func() {
		l.Run(stopped.Load)
		close(done)
	}()

	ran := make(chan struct{})
	l.Post(func() { close(ran) })
	<-ran

	// The flag alone does not wake the loop; it is only checked per message.
	stopped.Store(true)
	select {
	case <-done:
		t.Fatal("Run exited without a wake message")
	case <-time.After(50 * time.Millisecond):
	}

	l.Post(func() { t.Error("dispatched a message after stop") })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after wake message")
	}
}

func TestChanLoopPostAfterExitIsDropped(t *testing.T) {
	l := NewChanLoop(8)
	l.PostQuit()
	if err := l.Run(func() bool { return false }); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	// Must not panic or block.
	l.Post(func() {})
	l.PostQuit()
}

func TestChanLoopFullQueueDropsMessages(t *testing.T) {
	l := NewChanLoop(2)
	l.Post(func() {})
	l.Post(func() {})

	donePost := make(chan struct{})
	go func() {
		l.Post(func() {}) // queue full: dropped, never blocks
		close(donePost)
	}()
	select {
	case <-donePost:
	case <-time.After(2 * time.Second):
		t.Fatal("Post blocked on a full queue")
	}
}
