package kfmt

import (
	"kernos/kernel"
	"kernos/kernel/cpu"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	// panicHook, when non-nil, is invoked with the error that triggered the
	// panic before any output is produced. It is registered by the in-kernel
	// test harness to implement expected-panic tests; if the hook returns,
	// the normal panic path resumes.
	panicHook func(*kernel.Error)

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// SetPanicHook registers a hook that intercepts kernel panics. Passing nil
// removes a previously registered hook.
func SetPanicHook(hook func(*kernel.Error)) {
	panicHook = hook
}

// Panic reports the supplied error together with a panic banner and parks
// the CPU in an interrupt-disabled halt loop. Calls to Panic never return
// unless an installed panic hook diverts control (e.g. to the test harness
// exit path).
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	if panicHook != nil {
		panicHook(err)
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
