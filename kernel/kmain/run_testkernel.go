// +build testkernel

package kmain

import (
	"unsafe"

	"kernos/kernel"
	"kernos/kernel/kfmt"
	"kernos/kernel/ktest"
	"kernos/kernel/mem"
	"kernos/kernel/mem/heap"
	"kernos/kernel/mem/pmm/allocator"
	"kernos/kernel/mem/vmm"
)

var errTestAssertion = &kernel.Error{Module: "ktest", Message: "assertion failed"}

// run executes the in-kernel test suite instead of the regular task executor
// and exits the emulator with a status that reflects the suite outcome.
func run() {
	ktest.Run([]ktest.Test{
		{Name: "console output reaches the serial sink", Fn: testConsoleOutput},
		{Name: "frame allocator hands out distinct frames", Fn: testFrameAllocation},
		{Name: "heap allocations round trip", Fn: testHeapRoundTrip},
		{Name: "mapped pages translate to their frames", Fn: testPageMapping},
		{Name: "kernel stack overflow reports a double fault", Fn: testStackOverflow, ExpectPanic: true},
	})
}

func testConsoleOutput() {
	kfmt.Printf("hello from the test kernel\n")
}

func testFrameAllocation() {
	frame1, err := allocator.AllocFrame()
	if err != nil {
		kfmt.Panic(err)
	}
	frame2, err := allocator.AllocFrame()
	if err != nil {
		kfmt.Panic(err)
	}

	if !frame1.Valid() || !frame2.Valid() || frame1 == frame2 {
		kfmt.Panic(errTestAssertion)
	}
}

func testHeapRoundTrip() {
	addr, err := heap.Alloc(64, 16)
	if err != nil {
		kfmt.Panic(err)
	}

	buf := (*[64]byte)(unsafe.Pointer(addr))
	for i := range buf {
		buf[i] = byte(i)
	}
	for i := range buf {
		if buf[i] != byte(i) {
			kfmt.Panic(errTestAssertion)
		}
	}

	heap.Free(addr, 64, 16)
}

func testPageMapping() {
	virtAddr, err := vmm.EarlyReserveRegion(mem.PageSize)
	if err != nil {
		kfmt.Panic(err)
	}

	frame, err := allocator.AllocFrame()
	if err != nil {
		kfmt.Panic(err)
	}

	page := vmm.PageFromAddress(virtAddr)
	if err = vmm.Map(page, frame, vmm.FlagRW|vmm.FlagNoExecute); err != nil {
		kfmt.Panic(err)
	}

	physAddr, err := vmm.Translate(virtAddr)
	if err != nil {
		kfmt.Panic(err)
	}
	if physAddr != frame.Address() {
		kfmt.Panic(errTestAssertion)
	}

	// The mapping must be usable, not just present in the tables.
	probe := (*uint64)(unsafe.Pointer(virtAddr))
	*probe = 0xfeedfacecafebeef
	if *probe != 0xfeedfacecafebeef {
		kfmt.Panic(errTestAssertion)
	}
}

// overflowStackFn recurses through a package-level variable so the linker
// cannot statically bound the nosplit call chain.
var overflowStackFn func(uint64) uint64

//go:nosplit
func overflowKernelStack(depth uint64) uint64 {
	var scratch [128]uint64
	scratch[depth&127] = depth
	return overflowStackFn(depth+1) + scratch[depth&127]
}

// testStackOverflow recurses without stack checks until the kernel stack
// overruns its guard page. The CPU cannot push the page fault frame onto the
// exhausted stack, escalates to a double fault and enters the handler on its
// dedicated interrupt stack, which panics.
func testStackOverflow() {
	overflowStackFn = overflowKernelStack
	overflowStackFn(0)
}
