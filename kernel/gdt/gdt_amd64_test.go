package gdt

import (
	"testing"
	"unsafe"
)

func TestNewSegmentDescriptor(t *testing.T) {
	specs := []struct {
		base    uint32
		limit   uint32
		flags   segmentFlag
		expDesc segmentDescriptor
	}{
		// Long mode ring 0 code segment: present, system, code, long.
		{0, 0, segFlagSystem | segFlagCode | segFlagLong, 0x00209800_00000000},
		// Ring 0 data segment: present, system, writable.
		{0, 0, segFlagSystem | segFlagWrite, 0x00009200_00000000},
		// TSS-style descriptor with a non-zero base and limit.
		{0xdeadbeef, 0x67, segFlagAccessed | segFlagCode, 0xde0089ad_beef0067},
	}

	for specIndex, spec := range specs {
		if got := newSegmentDescriptor(spec.base, spec.limit, spec.flags); got != spec.expDesc {
			t.Errorf("[spec %d] expected descriptor 0x%016x; got 0x%016x", specIndex, uint64(spec.expDesc), uint64(got))
		}
	}
}

func TestTSSStackPointerEncoding(t *testing.T) {
	var (
		tcb  taskStateSegment
		addr = uint64(0xffff8000deadbeef)
	)

	tcb.setRSP(0, addr)
	if lo, hi := tcb[1], tcb[2]; lo != uint32(addr) || hi != uint32(addr>>32) {
		t.Errorf("expected RSP0 to be split as (0x%x, 0x%x); got (0x%x, 0x%x)", uint32(addr), uint32(addr>>32), lo, hi)
	}

	tcb.setRSP(2, addr)
	if lo, hi := tcb[5], tcb[6]; lo != uint32(addr) || hi != uint32(addr>>32) {
		t.Errorf("expected RSP2 to be split as (0x%x, 0x%x); got (0x%x, 0x%x)", uint32(addr), uint32(addr>>32), lo, hi)
	}

	tcb.setIST(DoubleFaultISTIndex, addr)
	if lo, hi := tcb[9], tcb[10]; lo != uint32(addr) || hi != uint32(addr>>32) {
		t.Errorf("expected IST1 to be split as (0x%x, 0x%x); got (0x%x, 0x%x)", uint32(addr), uint32(addr>>32), lo, hi)
	}

	// Out of range indices must leave the TSS untouched.
	var pristine taskStateSegment
	pristine.setRSP(3, addr)
	pristine.setIST(0, addr)
	pristine.setIST(8, addr)
	if pristine != (taskStateSegment{}) {
		t.Error("expected out of range stack indices to be ignored")
	}
}

func TestTSSIOPermOffset(t *testing.T) {
	var tcb taskStateSegment
	tcb.setIOPermOffset(uint16(unsafe.Sizeof(tcb)))

	if exp := uint32(unsafe.Sizeof(tcb)) << 16; tcb[24] != exp {
		t.Errorf("expected I/O permission offset word to be 0x%x; got 0x%x", exp, tcb[24])
	}
}

func TestDoubleFaultStackTop(t *testing.T) {
	top := stackTop(doubleFaultStack[:])

	if top%16 != 0 {
		t.Errorf("expected stack top 0x%x to be 16-byte aligned", top)
	}

	start := uintptr(unsafe.Pointer(&doubleFaultStack[0]))
	if top <= start || top > start+uintptr(len(doubleFaultStack)) {
		t.Errorf("expected stack top to fall within the stack buffer; got 0x%x for buffer [0x%x, 0x%x]", top, start, start+uintptr(len(doubleFaultStack)))
	}

	// The aligned top must not sacrifice more than 15 bytes.
	if start+uintptr(len(doubleFaultStack))-top >= 16 {
		t.Errorf("expected alignment to discard at most 15 bytes; discarded %d", start+uintptr(len(doubleFaultStack))-top)
	}
}
