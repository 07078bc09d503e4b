// Package event provides the bridge between interrupt handlers and task
// context code. Handlers push small fixed-size event payloads into a
// statically allocated ring; tasks drain the ring at their own pace. The
// queue never allocates and never blocks which makes the push path safe to
// run inside an interrupt handler.
package event

import "kernos/kernel/sync"

// queueCapacity is the number of events a queue can buffer. It must be a
// power of two so the ring indices can wrap with a mask.
const queueCapacity = 128

// Waker is invoked after an event is pushed into a previously empty queue.
// It runs in interrupt context and must not block or allocate; its typical
// job is marking a task as ready to poll.
type Waker func()

// Queue is a single-producer single-consumer ring buffer of byte-sized
// events. The producer side is an interrupt handler; the consumer side is
// task context code. Pushes into a full queue are counted and discarded
// rather than overwriting older events.
type Queue struct {
	lock sync.IrqSpinlock

	buf  [queueCapacity]uint8
	head uint64
	tail uint64

	dropped uint64
	waker   Waker
}

// SetWaker registers the function invoked when a push transitions the queue
// from empty to non-empty. Registering a nil waker disables notifications.
func (q *Queue) SetWaker(waker Waker) {
	q.lock.Acquire()
	q.waker = waker
	q.lock.Release()
}

// Push appends an event to the queue. If the queue is full the event is
// dropped and the drop counter incremented; interrupt handlers cannot wait
// for space. Push is safe to call from interrupt context.
func (q *Queue) Push(event uint8) {
	var wake Waker

	q.lock.Acquire()
	if q.tail-q.head == queueCapacity {
		q.dropped++
		q.lock.Release()
		return
	}

	wasEmpty := q.tail == q.head
	q.buf[q.tail&(queueCapacity-1)] = event
	q.tail++
	if wasEmpty {
		wake = q.waker
	}
	q.lock.Release()

	if wake != nil {
		wake()
	}
}

// Pop removes and returns the oldest event in the queue. The second return
// value reports whether an event was available.
func (q *Queue) Pop() (uint8, bool) {
	q.lock.Acquire()
	if q.head == q.tail {
		q.lock.Release()
		return 0, false
	}

	event := q.buf[q.head&(queueCapacity-1)]
	q.head++
	q.lock.Release()
	return event, true
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	q.lock.Acquire()
	n := int(q.tail - q.head)
	q.lock.Release()
	return n
}

// Dropped returns the number of events discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.lock.Acquire()
	n := q.dropped
	q.lock.Release()
	return n
}
