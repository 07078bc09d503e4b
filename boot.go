package main

import "kernos/kernel/kmain"

// bootInfoPtr holds the physical address of the boot information record. It
// is populated by the rt0 assembly code before main runs.
var bootInfoPtr uintptr

// main works as a trampoline for calling the actual kernel entrypoint
// (kmain.Kmain) and is intentionally defined to prevent the Go compiler from
// optimizing away the kernel code as it is not aware of the presence of the
// rt0 code.
//
// The main function is invoked by the rt0 assembly code after it has set up
// a minimal g0 struct that allows Go code to run on the boot stack. The rt0
// code stores the boot information pointer handed over by the bootloader
// shim in bootInfoPtr before jumping here.
//
// main is not expected to return. If it does, the rt0 code will halt the CPU.
func main() {
	kmain.Kmain(bootInfoPtr)
}
