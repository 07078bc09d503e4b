// Package qemu drives the isa-debug-exit device that qemu exposes when
// started with "-device isa-debug-exit,iobase=0xf4,iosize=0x04". Writing a
// value to the device port terminates the emulator, which is how the
// in-kernel test harness reports its verdict to the host.
package qemu

import "kernos/kernel/cpu"

// exitPort is the I/O port the isa-debug-exit device listens on.
const exitPort = uint16(0xf4)

// ExitCode is the value written to the exit device. The codes are chosen so
// that neither can collide with the exit status of a qemu process that
// terminated for a different reason.
type ExitCode uint32

const (
	// ExitSuccess reports that all in-kernel tests passed.
	ExitSuccess = ExitCode(0x10)

	// ExitFailure reports a failed test or an unexpected panic.
	ExitFailure = ExitCode(0x11)
)

var (
	portWriteDwordFn = cpu.PortWriteDword
	cpuHaltFn        = cpu.Halt
)

// Exit terminates the emulator with the given code. If the exit device is
// not present (for example when running under real hardware) the write is
// ignored and the CPU is parked instead; Exit never returns either way.
func Exit(code ExitCode) {
	portWriteDwordFn(exitPort, uint32(code))
	cpuHaltFn()
}

// ProcessExitCode returns the host process exit status that qemu produces
// for a value written to the exit device: the value shifted left by one with
// the lowest bit set.
func ProcessExitCode(code ExitCode) int {
	return int(code)<<1 | 1
}
