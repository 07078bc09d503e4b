package kbd

import (
	"io"

	"kernos/kernel/event"
	"kernos/kernel/kfmt"
	"kernos/kernel/task"
)

// EchoTask drains the keyboard event queue, decodes the scancodes and echoes
// the resulting characters to a writer. It never completes.
type EchoTask struct {
	events  *event.Queue
	decoder Decoder
	sink    io.Writer
}

// NewEchoTask returns a task that echoes decoded keystrokes from q to sink.
func NewEchoTask(q *event.Queue, decoder Decoder, sink io.Writer) *EchoTask {
	return &EchoTask{events: q, decoder: decoder, sink: sink}
}

// Poll drains every buffered scancode and then parks the task on the queue's
// waker. After arming the waker the queue is checked once more; a scancode
// pushed between the failed Pop and SetWaker would otherwise sit in the queue
// without anything ever waking the task.
func (t *EchoTask) Poll(waker task.Waker) task.Status {
	for {
		scancode, ok := t.events.Pop()
		if !ok {
			t.events.SetWaker(event.Waker(waker))
			if scancode, ok = t.events.Pop(); !ok {
				return task.Pending
			}
		}

		if ch, printable := t.decoder.Decode(scancode); printable {
			kfmt.Fprintf(t.sink, "%c", ch)
		}
	}
}
