package irq

import "kernos/kernel/kfmt"

// Registers contains a snapshot of all register values at the time an
// exception or hardware interrupt occurred. The field order mirrors the
// layout of the register block constructed by the interrupt entry code; any
// modification made by a handler is propagated back to the interrupted code
// when the handler returns.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// IntNumber is the vector of the interrupt that constructed this
	// snapshot. ErrorCode contains the error code pushed by the CPU or
	// zero for vectors that do not define one.
	IntNumber uint64
	ErrorCode uint64

	// The return frame used by IRETQ.
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// Print outputs a dump of the register values to the active console.
func (r *Registers) Print() {
	kfmt.Printf("RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Printf("RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Printf("RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Printf("RBP = %16x\n", r.RBP)
	kfmt.Printf("R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Printf("R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Printf("R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Printf("R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Printf("\n")
	kfmt.Printf("RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Printf("RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Printf("RFL = %16x\n", r.RFlags)
}
