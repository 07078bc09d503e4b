package event

import (
	"os"
	"testing"

	"kernos/kernel/sync"
)

// The queue lock must not execute privileged flag instructions while the
// tests run in user mode.
func TestMain(m *testing.M) {
	sync.SetFlagOps(func() uint64 { return 0 }, func(uint64) {})
	os.Exit(m.Run())
}

func TestQueuePushPopOrder(t *testing.T) {
	var q Queue

	for i := 0; i < 10; i++ {
		q.Push(uint8(i))
	}
	if got := q.Len(); got != 10 {
		t.Fatalf("expected queue length 10; got %d", got)
	}

	for i := 0; i < 10; i++ {
		event, ok := q.Pop()
		if !ok {
			t.Fatalf("[event %d] expected Pop to return an event", i)
		}
		if event != uint8(i) {
			t.Errorf("[event %d] expected event %d; got %d", i, i, event)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("expected Pop on an empty queue to report no event")
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	var q Queue

	for i := 0; i < queueCapacity; i++ {
		q.Push(uint8(i))
	}
	if got := q.Dropped(); got != 0 {
		t.Fatalf("expected no drops while filling the queue; got %d", got)
	}

	// Newer events are discarded; the buffered ones survive untouched.
	q.Push(0xaa)
	q.Push(0xbb)
	if got := q.Dropped(); got != 2 {
		t.Errorf("expected 2 dropped events; got %d", got)
	}
	if got := q.Len(); got != queueCapacity {
		t.Errorf("expected queue to remain at capacity %d; got %d", queueCapacity, got)
	}

	event, ok := q.Pop()
	if !ok || event != 0 {
		t.Errorf("expected the oldest buffered event to be 0; got %d (ok=%t)", event, ok)
	}

	// Draining one slot makes room again.
	q.Push(0xcc)
	if got := q.Dropped(); got != 2 {
		t.Errorf("expected drop counter to stay at 2; got %d", got)
	}
}

func TestQueueWraparound(t *testing.T) {
	var q Queue

	// Cycle enough events through the queue to wrap the ring indices
	// several times.
	for round := 0; round < 5; round++ {
		for i := 0; i < queueCapacity; i++ {
			q.Push(uint8(i))
		}
		for i := 0; i < queueCapacity; i++ {
			event, ok := q.Pop()
			if !ok || event != uint8(i) {
				t.Fatalf("[round %d] expected event %d; got %d (ok=%t)", round, i, event, ok)
			}
		}
	}
}

func TestQueueWakerFiresOnEmptyToNonEmpty(t *testing.T) {
	var (
		q     Queue
		wakes int
	)
	q.SetWaker(func() { wakes++ })

	q.Push(1)
	if wakes != 1 {
		t.Fatalf("expected waker to fire for the first push; fired %d times", wakes)
	}

	// Pushes into a non-empty queue stay silent.
	q.Push(2)
	q.Push(3)
	if wakes != 1 {
		t.Errorf("expected no further wakes while the queue is non-empty; fired %d times", wakes)
	}

	// Draining and pushing again re-arms the notification.
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
	}
	q.Push(4)
	if wakes != 2 {
		t.Errorf("expected waker to fire again after the queue drained; fired %d times", wakes)
	}
}

func TestQueueNilWaker(t *testing.T) {
	var q Queue

	// Pushing without a waker must not fault.
	q.Push(1)

	q.SetWaker(func() {})
	q.SetWaker(nil)
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
	}
	q.Push(2)
}
