// Package kmain contains the kernel entry point and the boot sequence that
// brings every subsystem online in dependency order: descriptor tables and
// interrupt routing first, then physical and virtual memory, the Go runtime,
// the kernel heap and finally the device drivers and the task executor.
package kmain

import (
	"sort"
	"unsafe"

	"kernos/device"
	// Drivers register their probes via their package init functions and
	// must be linked in explicitly.
	_ "kernos/device/kbd"
	_ "kernos/device/serial"
	_ "kernos/device/timer"
	"kernos/kernel"
	"kernos/kernel/gdt"
	"kernos/kernel/goruntime"
	"kernos/kernel/hal/bootinfo"
	"kernos/kernel/irq"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem/heap"
	"kernos/kernel/mem/pmm/allocator"
	"kernos/kernel/mem/vmm"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errDoubleFault   = &kernel.Error{Module: "kmain", Message: "double fault"}
)

// Kmain is invoked by the rt0 assembly code after it has established a
// minimal g0 struct that allows Go code to run on the boot stack. The rt0
// code passes the address of the boot information record prepared by the
// bootloader shim.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the
// CPU.
//
//go:noinline
func Kmain(bootInfoPtr uintptr) {
	info := (*bootinfo.BootInfo)(unsafe.Pointer(bootInfoPtr))
	bootinfo.Set(info)

	kfmt.Printf("kernos: starting\n")

	gdt.Init()

	var err *kernel.Error
	if err = irq.Init(); err != nil {
		kfmt.Panic(err)
	}
	irq.HandleExceptionWithCode(irq.DoubleFault, doubleFaultHandler)

	allocator.Init(info.KernelStart, info.KernelEnd)
	vmm.SetFrameAllocator(allocator.AllocFrame)
	if err = vmm.Init(info.PhysMemOffset); err != nil {
		kfmt.Panic(err)
	}
	if err = goruntime.Init(); err != nil {
		kfmt.Panic(err)
	}
	if err = heap.Init(); err != nil {
		kfmt.Panic(err)
	}

	detectDrivers()

	run()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// detectDrivers walks the driver registry in detect order, probes for the
// hardware each driver claims and initializes the drivers whose hardware is
// present. A failing driver is reported and skipped; the boot continues with
// whatever hardware works.
func detectDrivers() {
	drivers := device.DriverList()
	sort.Sort(drivers)

	for _, info := range drivers {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		w := &kfmt.PrefixWriter{
			Sink:   kfmt.GetOutputSink(),
			Prefix: []byte("[" + drv.DriverName() + "] "),
		}
		if err := drv.DriverInit(w); err != nil {
			kfmt.Printf("[kmain] driver %s failed to initialize: %s\n", drv.DriverName(), err.Message)
			continue
		}

		major, minor, patch := drv.DriverVersion()
		kfmt.Printf("[kmain] initialized driver: %s %d.%d.%d\n", drv.DriverName(), major, minor, patch)
	}
}

// doubleFaultHandler runs on its own interrupt stack so it stays functional
// even when the kernel stack itself is the problem.
func doubleFaultHandler(_ uint64, regs *irq.Registers) {
	kfmt.Printf("\nDouble fault\nRegisters:\n")
	regs.Print()

	kfmt.Panic(errDoubleFault)
}
