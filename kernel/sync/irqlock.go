// Package sync provides synchronization primitives for serializing access to
// state that is shared between task context and interrupt context.
package sync

import (
	"sync/atomic"

	"kernos/kernel/cpu"
)

var (
	// saveFlagsFn and restoreFlagsFn are mocked by tests and are
	// automatically inlined by the compiler.
	saveFlagsFn    = cpu.SaveFlagsAndDisableInterrupts
	restoreFlagsFn = cpu.RestoreFlags
)

// SetFlagOps replaces the primitives used to mask and restore interrupts
// around critical sections and returns the previously installed pair. Tests
// in packages that embed an IrqSpinlock install no-op implementations so the
// lock does not execute privileged instructions when running in user mode.
func SetFlagOps(save func() uint64, restore func(uint64)) (prevSave func() uint64, prevRestore func(uint64)) {
	prevSave, prevRestore = saveFlagsFn, restoreFlagsFn
	saveFlagsFn, restoreFlagsFn = save, restore
	return prevSave, prevRestore
}

// IrqSpinlock implements a spinlock that disables interrupts for the duration
// of its critical section. On a single core, a task that holds a plain
// spinlock can be interrupted by a handler that tries to acquire the same
// lock; the handler then spins forever as the holder can never resume. By
// masking interrupts before acquiring, IrqSpinlock makes that interleaving
// impossible, which is why every structure shared with interrupt context must
// be guarded by this type and never by a bare busy-wait lock.
type IrqSpinlock struct {
	state uint32

	// savedFlags captures the holder's RFLAGS value so that Release can
	// restore the interrupt state that was active before Acquire.
	savedFlags uint64
}

// Acquire disables interrupts and takes the lock. The previous interrupt
// state is restored by the matching Release call.
func (l *IrqSpinlock) Acquire() {
	flags := saveFlagsFn()
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
	}
	l.savedFlags = flags
}

// Release relinquishes a held lock and restores the interrupt state that was
// active when Acquire was called.
func (l *IrqSpinlock) Release() {
	flags := l.savedFlags
	atomic.StoreUint32(&l.state, 0)
	restoreFlagsFn(flags)
}
