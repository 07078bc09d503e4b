// Package gdt sets up the global descriptor table and the task state segment
// for long mode operation. Segmentation is effectively disabled on amd64 but
// the CPU still requires a valid GDT and a TSS; the TSS is also the only way
// to provide the interrupt stack table entries that let critical exception
// handlers run on a known-good stack.
package gdt

import (
	"encoding/binary"
	"unsafe"

	"kernos/kernel/mem"
)

// segmentDescriptor represents a 64-bit segment descriptor. The uint64 base
// type forces 8-byte alignment.
type segmentDescriptor uint64

// taskStateSegment describes the amd64 TSS layout. Hardware task switching is
// not available in 64-bit mode but the structure still carries the privilege
// level stacks (RSP0-2), the interrupt stack table (IST1-7) and the I/O
// permission bitmap offset.
type taskStateSegment [25]uint32

// Segment selector indices. The order is fixed: assembly constructs IRETQ
// frames with hardcoded selector values and the TSS descriptor spans two
// consecutive slots.
const (
	// Mandatory null selector.
	_ = iota
	segmentKernelCode
	segmentKernelData
	segmentTSS
	segmentTSSHigh
	segmentCount
)

// Selectors exposed to the interrupt handling code. Each selector is the
// descriptor index shifted left by 3 with the RPL bits left at ring 0.
const (
	KernelCodeSelector = uint16(segmentKernelCode << 3)
	KernelDataSelector = uint16(segmentKernelData << 3)
	tssSelector        = uint16(segmentTSS << 3)
)

const (
	// DoubleFaultISTIndex is the 1-based interrupt stack table entry that
	// double fault handlers execute on. Running the handler on a dedicated
	// stack is what makes faults caused by kernel stack overflows
	// reportable instead of escalating to a triple fault.
	DoubleFaultISTIndex = 1

	// doubleFaultStackSize is the size of the dedicated double fault stack.
	doubleFaultStackSize = 5 << mem.PageShift
)

type segmentFlag uint32

const (
	segFlagAccessed segmentFlag = 1 << 8
	segFlagWrite    segmentFlag = 1 << 9
	segFlagCode     segmentFlag = 1 << 11
	segFlagSystem   segmentFlag = 1 << 12
	segFlagPresent  segmentFlag = 1 << 15
	segFlagLong     segmentFlag = 1 << 21
)

var (
	gdtTable [segmentCount]segmentDescriptor
	tss      taskStateSegment

	// doubleFaultStack provides the memory backing the double fault IST
	// entry. It is statically allocated so it is usable before any memory
	// manager comes online.
	doubleFaultStack [doubleFaultStackSize]byte
)

// Init builds the descriptor table, populates the TSS interrupt stack table
// and loads both into the CPU. It must be called exactly once before the IDT
// is installed.
func Init() {
	tss.setIST(DoubleFaultISTIndex, uint64(stackTop(doubleFaultStack[:])))
	// Block access to all I/O ports from lower privilege levels.
	tss.setIOPermOffset(uint16(unsafe.Sizeof(tss)))

	tssAddr := uintptr(unsafe.Pointer(&tss))
	tssLimit := uint32(unsafe.Sizeof(tss) - 1)

	gdtTable[segmentKernelCode] = newSegmentDescriptor(0, 0, segFlagSystem|segFlagCode|segFlagLong)
	gdtTable[segmentKernelData] = newSegmentDescriptor(0, 0, segFlagSystem|segFlagWrite)
	// The 64-bit TSS descriptor spans two GDT slots with the high 32 bits
	// of its address stored in the second slot.
	gdtTable[segmentTSS] = newSegmentDescriptor(uint32(tssAddr), tssLimit, segFlagAccessed|segFlagCode)
	gdtTable[segmentTSSHigh] = segmentDescriptor(tssAddr >> 32)

	// The LGDT operand is a 10-byte value: a 16-bit table limit followed
	// by the 64-bit base address.
	var gdtPtr [10]uint8
	binary.LittleEndian.PutUint16(gdtPtr[:2], uint16(unsafe.Sizeof(gdtTable)-1))
	binary.LittleEndian.PutUint64(gdtPtr[2:], uint64(uintptr(unsafe.Pointer(&gdtTable))))

	loadGDT(uint64(uintptr(unsafe.Pointer(&gdtPtr))))
	loadSegmentRegisters(KernelCodeSelector, KernelDataSelector)
	loadTaskRegister(tssSelector)
}

// newSegmentDescriptor encodes a ring 0 segment descriptor. The base and
// limit fields are only honored by the CPU for the TSS descriptor; code and
// data descriptors ignore them in long mode.
func newSegmentDescriptor(base uint32, limit uint32, flags segmentFlag) segmentDescriptor {
	flags |= segFlagPresent

	w0 := base<<16 | limit&0xffff
	w1 := base&0xff000000 | limit&0xf0000 | uint32(flags) | (base>>16)&0xff
	return segmentDescriptor(uint64(w1)<<32 | uint64(w0))
}

// setIST records the stack top address for the 1-based interrupt stack table
// entry idx.
func (t *taskStateSegment) setIST(idx int, stackTop uint64) {
	if idx < 1 || idx > 7 {
		return
	}
	t[7+idx*2] = uint32(stackTop)
	t[7+idx*2+1] = uint32(stackTop >> 32)
}

// setRSP records the stack top address used when an interrupt lowers the
// privilege level to ring idx.
func (t *taskStateSegment) setRSP(idx int, stackTop uint64) {
	if idx < 0 || idx > 2 {
		return
	}
	t[1+idx*2] = uint32(stackTop)
	t[1+idx*2+1] = uint32(stackTop >> 32)
}

// setIOPermOffset sets the offset to the I/O permission bitmap. Pointing it
// at (or past) the TSS limit blocks all ports.
func (t *taskStateSegment) setIOPermOffset(offset uint16) {
	t[24] = uint32(offset) << 16
}

// stackTop returns the address just past the end of the stack buffer rounded
// down to the 16-byte alignment that interrupt entry requires.
func stackTop(stack []byte) uintptr {
	top := uintptr(unsafe.Pointer(&stack[0])) + uintptr(len(stack))
	return top & ^uintptr(15)
}

// loadGDT loads the descriptor table whose limit and base are packed at addr
// into the GDTR register.
func loadGDT(addr uint64)

// loadSegmentRegisters reloads CS via a far return and points the remaining
// segment registers at the data selector.
func loadSegmentRegisters(codeSelector, dataSelector uint16)

// loadTaskRegister loads the TSS selector into the task register.
func loadTaskRegister(selector uint16)
