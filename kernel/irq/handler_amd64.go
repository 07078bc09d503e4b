// Package irq installs the interrupt descriptor table and routes CPU
// exceptions and hardware interrupts to registered Go handlers. Hardware
// interrupt lines are delivered through a remapped 8259A PIC pair and are
// acknowledged by the dispatcher after the registered handler returns.
package irq

import (
	"kernos/kernel"
	"kernos/kernel/gdt"
	"kernos/kernel/kfmt"
	"kernos/kernel/sync"
)

// ExceptionNum defines an exception vector that can be passed to the
// HandleException and HandleExceptionWithCode functions.
type ExceptionNum uint8

const (
	// DivideError occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideError = ExceptionNum(0)

	// Breakpoint occurs when the CPU executes an INT3 instruction.
	Breakpoint = ExceptionNum(3)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = ExceptionNum(6)

	// DoubleFault occurs when an exception is unhandled or when an
	// exception occurs while the CPU is trying to call an exception
	// handler. Its gate always uses a dedicated interrupt stack so that
	// kernel stack overflows remain reportable.
	DoubleFault = ExceptionNum(8)

	// GPFException is raised when a general protection fault occurs.
	GPFException = ExceptionNum(13)

	// PageFaultException is raised when a page table or page table entry
	// is not present or when a privilege and/or RW protection check fails.
	PageFaultException = ExceptionNum(14)
)

const (
	// irqBaseVector is the vector where the remapped master PIC delivers
	// IRQ line 0. The slave PIC follows at irqBaseVector + 8.
	irqBaseVector = 32

	// TimerIRQ is the IRQ line wired to the programmable interval timer.
	TimerIRQ = uint8(0)

	// KeyboardIRQ is the IRQ line wired to the PS/2 keyboard controller.
	KeyboardIRQ = uint8(1)
)

// ExceptionHandler is a function that handles an exception that does not push
// an error code to the stack. If the handler returns, any modification to the
// supplied Registers will be propagated back to the location where the
// exception occurred.
type ExceptionHandler func(*Registers)

// ExceptionHandlerWithCode is a function that handles an exception that
// pushes an error code to the stack.
type ExceptionHandlerWithCode func(uint64, *Registers)

// IRQHandler is a function invoked in interrupt context when a hardware
// interrupt fires. The handler runs with interrupts disabled, must not block
// and must not allocate; the dispatcher acknowledges the PIC after the
// handler returns.
type IRQHandler func()

var (
	exceptionHandlers [irqBaseVector]ExceptionHandler
	irqHandlers       [numIRQLines]IRQHandler

	pic pic8259

	// eoiFn acknowledges a serviced IRQ line. Tests substitute it to
	// observe dispatcher behavior without touching ports.
	eoiFn = pic.ack

	errUnhandledException = &kernel.Error{Module: "irq", Message: "unhandled exception"}

	initOnce sync.Once
)

// Init remaps the PIC pair, populates the interrupt descriptor table with the
// entry trampolines and loads it into the CPU. All hardware interrupt lines
// start out masked; registering a handler via HandleIRQ unmasks the line.
// Interrupts remain globally disabled until the caller decides otherwise.
// Calling Init more than once is a no-op; the descriptor table is loaded
// exactly once per boot.
func Init() *kernel.Error {
	initOnce.Do(func() {
		pic.init(irqBaseVector, irqBaseVector+8)

		installGate(uint8(DivideError), 0, trapDivideError)
		installGate(uint8(Breakpoint), 0, trapBreakpoint)
		installGate(uint8(InvalidOpcode), 0, trapInvalidOpcode)
		installGate(uint8(DoubleFault), gdt.DoubleFaultISTIndex, trapDoubleFault)
		installGate(uint8(GPFException), 0, trapGPF)
		installGate(uint8(PageFaultException), 0, trapPageFault)

		irqEntries := [numIRQLines]func(){
			irqEntry0, irqEntry1, irqEntry2, irqEntry3,
			irqEntry4, irqEntry5, irqEntry6, irqEntry7,
			irqEntry8, irqEntry9, irqEntry10, irqEntry11,
			irqEntry12, irqEntry13, irqEntry14, irqEntry15,
		}
		for line, entry := range irqEntries {
			installGate(uint8(irqBaseVector+line), 0, entry)
		}

		installIDT()
	})
	return nil
}

// HandleException registers an exception handler (without an error code) for
// the given exception vector.
func HandleException(exceptionNum ExceptionNum, handler ExceptionHandler) {
	exceptionHandlers[exceptionNum] = handler
}

// HandleExceptionWithCode registers an exception handler (with an error code)
// for the given exception vector.
func HandleExceptionWithCode(exceptionNum ExceptionNum, handler ExceptionHandlerWithCode) {
	exceptionHandlers[exceptionNum] = func(regs *Registers) {
		handler(regs.ErrorCode, regs)
	}
}

// HandleIRQ registers a handler for the given hardware interrupt line and
// unmasks the line on the PIC. Passing a nil handler masks the line again.
func HandleIRQ(line uint8, handler IRQHandler) {
	if line >= numIRQLines {
		return
	}

	irqHandlers[line] = handler
	if handler == nil {
		pic.mask(line)
		return
	}
	pic.unmask(line)
}

// dispatchInterrupt is invoked by the assembly entry trampolines with a
// pointer to the register block they constructed on the stack. It routes the
// vector to the registered handler and, for hardware interrupts, sends the
// end of interrupt sequence once the handler has returned.
//
//go:nosplit
func dispatchInterrupt(regs *Registers) {
	vector := regs.IntNumber

	if vector < irqBaseVector {
		if handler := exceptionHandlers[vector]; handler != nil {
			handler(regs)
			return
		}

		kfmt.Printf("\nUnhandled exception (vector: %d, error code: %d)\nRegisters:\n", vector, regs.ErrorCode)
		regs.Print()
		kfmt.Panic(errUnhandledException)
		return
	}

	line := uint8(vector - irqBaseVector)
	if line >= numIRQLines {
		// Vector outside the ranges installed by Init; nothing to do.
		return
	}

	if handler := irqHandlers[line]; handler != nil {
		handler()
	}
	eoiFn(line)
}
