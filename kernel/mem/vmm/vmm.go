// Package vmm manages the kernel's virtual address space. It provides
// primitives for mapping virtual pages to physical frames, translating
// virtual addresses and handling faults raised by the paging hardware.
//
// All page table accesses go through the physical memory offset mapping
// installed by the bootloader: the entire physical address space is mapped
// starting at a fixed virtual offset, so the table for any level can be
// reached by adding that offset to the frame address stored in the parent
// entry. This keeps the walk free of recursive mapping tricks and makes the
// table structures directly addressable from kernel code.
package vmm

import (
	"kernos/kernel"
	"kernos/kernel/cpu"
	"kernos/kernel/irq"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem/pmm"
)

var (
	// physMemOffset is the virtual address where the bootloader mapped the
	// start of physical memory. It is captured once by Init and never
	// changes afterwards.
	physMemOffset uintptr

	// activePDTFn and readCR2Fn give tests a way to substitute the
	// register accesses that require real hardware.
	activePDTFn = cpu.ActivePDT
	readCR2Fn   = cpu.ReadCR2

	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "unrecoverable fault"}
)

// activeRootFrame returns the physical frame that holds the root of the
// currently active page table hierarchy.
func activeRootFrame() pmm.Frame {
	return pmm.FrameFromAddress(activePDTFn())
}

// PhysMemOffset returns the virtual address where physical memory is mapped.
func PhysMemOffset() uintptr {
	return physMemOffset
}

// Init sets up the vmm state using the physical memory offset reported by the
// bootloader and installs the handlers for the faults raised by the paging
// hardware.
func Init(offset uintptr) *kernel.Error {
	physMemOffset = offset

	irq.HandleExceptionWithCode(irq.PageFaultException, pageFaultHandler)
	irq.HandleExceptionWithCode(irq.GPFException, generalProtectionFaultHandler)
	return nil
}

// pageFaultHandler is invoked when the CPU raises a page fault. The kernel
// maps every region it needs up front so any fault indicates a bug; the
// handler prints the faulting address together with the decoded error code
// and brings the system down.
func pageFaultHandler(errorCode uint64, regs *irq.Registers) {
	faultAddress := readCR2Fn()

	kfmt.Printf("\nPage fault while accessing address: 0x%16x\nReason: ", faultAddress)
	switch errorCode {
	case 0:
		kfmt.Printf("read from non-present page")
	case 1:
		kfmt.Printf("page protection violation (read)")
	case 2:
		kfmt.Printf("write to non-present page")
	case 3:
		kfmt.Printf("page protection violation (write)")
	case 4:
		kfmt.Printf("page-fault in user-mode (read from non-present page)")
	case 5:
		kfmt.Printf("page-fault in user-mode (page protection violation while reading)")
	case 6:
		kfmt.Printf("page-fault in user-mode (write to non-present page)")
	case 7:
		kfmt.Printf("page-fault in user-mode (page protection violation while writing)")
	default:
		kfmt.Printf("unknown")
	}
	kfmt.Printf("\n\nRegisters:\n")
	regs.Print()

	kfmt.Panic(errUnrecoverableFault)
}

// generalProtectionFaultHandler is invoked when the CPU raises a general
// protection fault. As with page faults, there is no recovery path.
func generalProtectionFaultHandler(errorCode uint64, regs *irq.Registers) {
	// CR2 is only defined for page faults; the segment selector in the
	// error code is the only address-like information a GPF carries.
	kfmt.Printf("\nGeneral protection fault (error code: %d)\n", errorCode)
	kfmt.Printf("Registers:\n")
	regs.Print()

	kfmt.Panic(errUnrecoverableFault)
}
