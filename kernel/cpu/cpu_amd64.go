// Package cpu provides thin wrappers over the amd64 instructions that the
// kernel needs to control the processor. All functions in this package are
// implemented in assembly.
package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// EnableInterruptsAndHalt enables interrupts and halts the CPU with a
// STI;HLT instruction pair. As STI only takes effect after the instruction
// that follows it, no interrupt can slip in between the two instructions;
// an interrupt arriving after the caller decided to sleep is therefore
// guaranteed to wake the CPU instead of being lost.
func EnableInterruptsAndHalt()

// Halt parks the CPU in an interrupt-disabled halt loop. Calls to Halt
// never return.
func Halt()

// SaveFlagsAndDisableInterrupts returns the current value of the RFLAGS
// register and disables interrupt handling. The returned value is meant to
// be passed to a matching RestoreFlags call.
func SaveFlagsAndDisableInterrupts() uint64

// RestoreFlags loads the supplied value into the RFLAGS register. It is used
// together with SaveFlagsAndDisableInterrupts to implement critical sections
// that preserve the caller's interrupt state.
func RestoreFlags(flags uint64)

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortWriteDword writes a uint32 value to the requested port.
func PortWriteDword(port uint16, val uint32)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8
