package irq

import (
	"encoding/binary"
	"unsafe"

	"kernos/kernel/gdt"
)

// idtDescriptor encodes a 16-byte interrupt gate. The [2]uint64 base type
// forces the 8-byte alignment the CPU expects.
type idtDescriptor [2]uint64

// idtTable is the interrupt descriptor table. Entries not installed by Init
// remain zero (non-present); raising such a vector escalates to a double
// fault which is always installed.
var idtTable [256]idtDescriptor

// installGate encodes an interrupt gate for the given vector that transfers
// control to trampoline. A non-zero ist selects the interrupt stack table
// entry the CPU switches to before pushing the exception frame.
//
// Interrupt gates (type 0xe) clear the IF flag on entry so handlers always
// run with interrupts disabled. This kernel never re-enables them inside a
// handler.
func installGate(vector uint8, ist uint8, trampoline func()) {
	var (
		pc    = funcPC(trampoline)
		sel   = uint32(gdt.KernelCodeSelector)
		flags = uint32(1) << 15 // present, DPL 0
	)

	const interruptGate = 0xe

	w0 := sel<<16 | uint32(pc&0xffff)
	w1 := uint32(pc&0xffff0000) | flags | interruptGate<<8 | uint32(ist)
	idtTable[vector][0] = uint64(w1)<<32 | uint64(w0)
	idtTable[vector][1] = uint64(pc >> 32)
}

// funcPC returns the entry address of the code backing f.
func funcPC(f func()) uintptr {
	return **(**uintptr)(unsafe.Pointer(&f))
}

// installIDT loads the populated descriptor table into the IDTR register.
func installIDT() {
	// The LIDT operand is a 10-byte value: a 16-bit table limit followed
	// by the 64-bit base address.
	var idtPtr [10]uint8
	binary.LittleEndian.PutUint16(idtPtr[:2], uint16(unsafe.Sizeof(idtTable)-1))
	binary.LittleEndian.PutUint64(idtPtr[2:], uint64(uintptr(unsafe.Pointer(&idtTable))))

	loadIDT(uint64(uintptr(unsafe.Pointer(&idtPtr))))
}

// loadIDT loads the descriptor table whose limit and base are packed at addr
// into the IDTR register.
func loadIDT(addr uint64)

// Entry trampolines implemented in assembly. Each trampoline pushes its
// vector (and a dummy error code for vectors where the CPU does not supply
// one), saves the general purpose registers and forwards to
// dispatchInterrupt.
func trapDivideError()
func trapBreakpoint()
func trapInvalidOpcode()
func trapDoubleFault()
func trapGPF()
func trapPageFault()

func irqEntry0()
func irqEntry1()
func irqEntry2()
func irqEntry3()
func irqEntry4()
func irqEntry5()
func irqEntry6()
func irqEntry7()
func irqEntry8()
func irqEntry9()
func irqEntry10()
func irqEntry11()
func irqEntry12()
func irqEntry13()
func irqEntry14()
func irqEntry15()
