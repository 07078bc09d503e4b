// Package task implements a cooperative executor for kernel tasks. Tasks are
// polled on the single CPU until they report completion; a task that cannot
// make progress returns Pending and arranges for a waker to be invoked (for
// example from an interrupt handler) when it becomes runnable again. When no
// task is ready the executor halts the CPU until the next interrupt, so an
// idle system burns no cycles.
package task

import (
	"kernos/kernel"
	"kernos/kernel/cpu"
	"kernos/kernel/sync"
)

// ID identifies a spawned task for the lifetime of the executor.
type ID uint64

// Status is the result of polling a task.
type Status int

const (
	// Pending indicates the task cannot make further progress until its
	// waker is invoked.
	Pending Status = iota

	// Done indicates the task has finished and must not be polled again.
	Done
)

// Waker marks the task it belongs to as ready to be polled. Wakers are safe
// to invoke from interrupt context and are idempotent: waking an
// already-ready or finished task has no effect.
type Waker func()

// Task is a unit of cooperative work. Poll either completes the task or
// stashes the supplied waker somewhere (an event queue, a timer list) that
// will invoke it once progress is possible, then returns Pending. Poll runs
// in task context with interrupts enabled and must not busy-wait.
type Task interface {
	Poll(waker Waker) Status
}

// maxTasks bounds the number of live tasks per executor. It must be a power
// of two so the ready ring indices can wrap with a mask.
const maxTasks = 64

var (
	// cpu hooks, swapped out by tests.
	disableInterruptsFn       = cpu.DisableInterrupts
	enableInterruptsFn        = cpu.EnableInterrupts
	enableInterruptsAndHaltFn = cpu.EnableInterruptsAndHalt

	// ErrNilTask is returned by Spawn when a nil task is supplied.
	ErrNilTask = &kernel.Error{Module: "task", Message: "cannot spawn nil task"}

	// ErrTooManyTasks is returned by Spawn when the live task limit is
	// reached.
	ErrTooManyTasks = &kernel.Error{Module: "task", Message: "task limit reached"}
)

// Executor schedules tasks cooperatively on the single CPU.
//
// The wake path runs in interrupt context and must never allocate: the
// ready queue is a fixed ring, and the queued map only ever has its entries
// flipped by wakes; the entry for each task is created by Spawn in task
// context. A ring slot is held exactly by the queued entries whose value is
// true, and Spawn caps the total number of queued entries, so the ring can
// never overflow. A task that completes while its last wake is still in the
// ring leaves its queued entry behind as a tombstone; the entry is reclaimed
// when the stale ring slot is popped.
type Executor struct {
	lock sync.IrqSpinlock

	tasks  map[ID]Task
	queued map[ID]bool

	ready     [maxTasks]ID
	readyHead uint64
	readyTail uint64

	nextID ID
}

// NewExecutor returns an empty executor. It allocates and must therefore not
// be called before the kernel heap is online.
func NewExecutor() *Executor {
	return &Executor{
		tasks:  make(map[ID]Task, maxTasks),
		queued: make(map[ID]bool, maxTasks),
	}
}

// Spawn registers a task with the executor and queues it for an initial
// poll. The returned ID stays valid until the task completes. Spawn fails
// with ErrTooManyTasks while maxTasks tasks hold ring slots.
func (e *Executor) Spawn(t Task) (ID, *kernel.Error) {
	if t == nil {
		return 0, ErrNilTask
	}

	e.lock.Acquire()
	if len(e.queued) == maxTasks {
		e.lock.Release()
		return 0, ErrTooManyTasks
	}
	e.nextID++
	id := e.nextID
	e.tasks[id] = t
	e.queued[id] = false
	e.enqueueLocked(id)
	e.lock.Release()

	return id, nil
}

// Waker returns a waker bound to the given task ID.
func (e *Executor) Waker(id ID) Waker {
	return func() { e.wake(id) }
}

// wake queues the task for polling. Wakes targeting unknown (typically
// already completed) tasks and tasks already queued are ignored.
func (e *Executor) wake(id ID) {
	e.lock.Acquire()
	if _, exists := e.tasks[id]; exists {
		e.enqueueLocked(id)
	}
	e.lock.Release()
}

func (e *Executor) enqueueLocked(id ID) {
	if e.queued[id] {
		return
	}
	// Flipping an existing map entry does not allocate; the entry was
	// created by Spawn.
	e.queued[id] = true
	e.ready[e.readyTail&(maxTasks-1)] = id
	e.readyTail++
}

// RunReady polls every task that was ready when the call started and returns
// the number of polls performed. Tasks woken while RunReady is polling are
// picked up by the next invocation; this keeps a self-waking task from
// starving the idle transition in Run.
func (e *Executor) RunReady() int {
	e.lock.Acquire()
	batch := e.readyTail - e.readyHead
	e.lock.Release()

	var polled int
	for i := uint64(0); i < batch; i++ {
		e.lock.Acquire()
		if e.readyHead == e.readyTail {
			e.lock.Release()
			break
		}
		id := e.ready[e.readyHead&(maxTasks-1)]
		e.readyHead++
		t, exists := e.tasks[id]
		if exists {
			e.queued[id] = false
		} else {
			// Reclaim the tombstone of a task that completed while
			// this wake was still in the ring.
			delete(e.queued, id)
		}
		e.lock.Release()

		if !exists {
			continue
		}

		// Poll outside the lock: the task may invoke its own waker or
		// spawn new tasks.
		polled++
		if t.Poll(e.Waker(id)) == Done {
			e.lock.Acquire()
			delete(e.tasks, id)
			if !e.queued[id] {
				delete(e.queued, id)
			}
			e.lock.Release()
		}
	}

	return polled
}

// Run drives the executor forever. After draining the ready queue it parks
// the CPU until the next interrupt. Interrupts are disabled across the final
// emptiness check so a wake arriving between the check and the halt cannot
// be lost: the halt instruction only executes after interrupts are atomically
// re-enabled.
func (e *Executor) Run() {
	for {
		e.RunReady()
		e.park()
	}
}

func (e *Executor) park() {
	disableInterruptsFn()

	e.lock.Acquire()
	idle := e.readyHead == e.readyTail
	e.lock.Release()

	if idle {
		enableInterruptsAndHaltFn()
		return
	}
	enableInterruptsFn()
}

// Len returns the number of live tasks.
func (e *Executor) Len() int {
	e.lock.Acquire()
	n := len(e.tasks)
	e.lock.Release()
	return n
}
