// Package ktest implements the in-kernel test harness. Test kernels link a
// list of tests into a dedicated entry point; the harness runs them on the
// bare metal, reports each verdict on the console and finally terminates the
// emulator through the qemu exit device so the host can read the overall
// result from the process exit status.
package ktest

import (
	"kernos/device/qemu"
	"kernos/kernel"
	"kernos/kernel/kfmt"
)

// Test describes a single in-kernel test.
type Test struct {
	// Name is printed before the test runs.
	Name string

	// Fn is the test body. It reports failures by panicking, usually via
	// kfmt.Panic.
	Fn func()

	// ExpectPanic inverts the verdict: the test passes only if Fn
	// panics. Used for tests whose whole point is hitting a fault path,
	// like overflowing the kernel stack.
	ExpectPanic bool
}

var (
	// exitFn terminates the test run. Overridable so the harness itself
	// can be tested on a host.
	exitFn = qemu.Exit
)

// Run executes every test in order and never returns: once the last verdict
// is known the emulator is terminated with ExitSuccess if all tests passed
// and ExitFailure otherwise.
func Run(tests []Test) {
	kfmt.Printf("running %d tests\n", len(tests))

	failed := 0
	for _, test := range tests {
		if !runTest(test) {
			failed++
		}
	}

	if failed > 0 {
		kfmt.Printf("\n%d of %d tests failed\n", failed, len(tests))
		exitFn(qemu.ExitFailure)
		return
	}

	kfmt.Printf("\nall tests passed\n")
	exitFn(qemu.ExitSuccess)
}

// runTest executes one test and prints its verdict. Kernel panics raised by
// the test body are diverted into a Go panic by a temporary panic hook so the
// harness can recover and keep running the remaining tests.
func runTest(test Test) bool {
	kfmt.Printf("%s... ", test.Name)

	panicked := invokeTest(test.Fn)

	switch {
	case panicked == test.ExpectPanic:
		kfmt.Printf("[ok]\n")
		return true
	case test.ExpectPanic:
		kfmt.Printf("[failed: test did not panic]\n")
		return false
	default:
		kfmt.Printf("[failed]\n")
		return false
	}
}

// testPanic wraps the error captured by the panic hook so the recover path
// can tell harness-initiated unwinding apart from other panics.
type testPanic struct {
	err *kernel.Error
}

func invokeTest(fn func()) (panicked bool) {
	defer kfmt.SetPanicHook(nil)
	kfmt.SetPanicHook(func(err *kernel.Error) {
		panic(testPanic{err: err})
	})

	defer func() {
		if r := recover(); r != nil {
			panicked = true
		}
	}()

	fn()
	return false
}
