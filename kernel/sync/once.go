package sync

import "sync/atomic"

// Once guards the one-time initialization of a process-wide singleton. It is
// safe to race on the first touch: all callers may invoke Do but exactly one
// initializer runs and the rest observe done. Once values are never reset;
// kernel singletons are alive until the machine halts.
type Once struct {
	done uint32
}

// Do invokes fn if and only if this is the first call to Do on this Once.
func (o *Once) Do(fn func()) {
	if !atomic.CompareAndSwapUint32(&o.done, 0, 1) {
		return
	}
	fn()
}

// Done returns true if Do has been invoked.
func (o *Once) Done() bool {
	return atomic.LoadUint32(&o.done) == 1
}
