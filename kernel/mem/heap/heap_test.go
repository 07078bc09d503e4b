package heap

import (
	"os"
	"testing"
	"unsafe"

	"kernos/kernel"
	"kernos/kernel/mem"
	"kernos/kernel/mem/pmm"
	"kernos/kernel/mem/vmm"
	"kernos/kernel/sync"
)

// The heap lock must not execute privileged flag instructions while the
// tests run in user mode.
func TestMain(m *testing.M) {
	sync.SetFlagOps(func() uint64 { return 0 }, func(uint64) {})
	os.Exit(m.Run())
}

// newTestRegion carves an aligned region of the given size out of a host
// allocated buffer so the allocator's embedded nodes land in real memory.
func newTestRegion(size uintptr) (start uintptr, cleanup func()) {
	buf := make([]byte, size+16)
	start = alignUp(uintptr(unsafe.Pointer(&buf[0])), 16)
	return start, func() { _ = buf }
}

func TestAllocFreeRoundTrip(t *testing.T) {
	const regionSize = uintptr(4096)
	start, cleanup := newTestRegion(regionSize)
	defer cleanup()

	var a linkedListAllocator
	a.init(start, regionSize)

	if got := a.freeBytes(); got != regionSize {
		t.Fatalf("expected %d free bytes after init; got %d", regionSize, got)
	}

	size, align := adjustLayout(100, 8)
	addr := a.alloc(size, align)
	if addr == 0 {
		t.Fatal("expected allocation to succeed")
	}
	if addr < start || addr+size > start+regionSize {
		t.Fatalf("allocation [0x%x, 0x%x] outside region [0x%x, 0x%x]", addr, addr+size, start, start+regionSize)
	}
	if got := a.freeBytes(); got != regionSize-size {
		t.Errorf("expected %d free bytes after alloc; got %d", regionSize-size, got)
	}

	a.addFreeRegion(addr, size)
	if got := a.freeBytes(); got != regionSize {
		t.Errorf("expected %d free bytes after free; got %d", regionSize, got)
	}
	if got := a.regionCount(); got != 1 {
		t.Errorf("expected free to merge back into a single region; got %d regions", got)
	}
}

func TestAllocFirstFitIsAddressOrdered(t *testing.T) {
	const regionSize = uintptr(4096)
	start, cleanup := newTestRegion(regionSize)
	defer cleanup()

	var a linkedListAllocator
	a.init(start, regionSize)

	size, align := adjustLayout(64, 8)
	first := a.alloc(size, align)
	second := a.alloc(size, align)
	if first == 0 || second == 0 {
		t.Fatal("expected both allocations to succeed")
	}
	if first >= second {
		t.Fatalf("expected allocations to be handed out in ascending address order; got 0x%x then 0x%x", first, second)
	}

	// Freeing the lower region makes it the first fit for the next
	// allocation of the same layout.
	a.addFreeRegion(first, size)
	if got := a.alloc(size, align); got != first {
		t.Errorf("expected reallocation to reuse the lowest free region 0x%x; got 0x%x", first, got)
	}
}

func TestAllocAlignment(t *testing.T) {
	// Align the region base to 256 so the front pad created below has a
	// known size.
	const regionSize = uintptr(4096)
	buf := make([]byte, regionSize+256)
	start := alignUp(uintptr(unsafe.Pointer(&buf[0])), 256)

	var a linkedListAllocator
	a.init(start, regionSize)

	// Consume a small block so the next free region starts misaligned.
	size, align := adjustLayout(32, 8)
	if a.alloc(size, align) == 0 {
		t.Fatal("expected first allocation to succeed")
	}

	size, align = adjustLayout(128, 256)
	addr := a.alloc(size, align)
	if addr == 0 {
		t.Fatal("expected aligned allocation to succeed")
	}
	if addr%256 != 0 {
		t.Errorf("expected address 0x%x to be 256-byte aligned", addr)
	}
	if exp := start + 256; addr != exp {
		t.Errorf("expected first fitting aligned address 0x%x; got 0x%x", exp, addr)
	}
}

func TestFreeCoalescesNeighbors(t *testing.T) {
	const regionSize = uintptr(4096)
	start, cleanup := newTestRegion(regionSize)
	defer cleanup()

	var a linkedListAllocator
	a.init(start, regionSize)

	size, align := adjustLayout(256, 8)
	first := a.alloc(size, align)
	second := a.alloc(size, align)
	third := a.alloc(size, align)
	if first == 0 || second == 0 || third == 0 {
		t.Fatal("expected all three allocations to succeed")
	}

	// Free the outer regions: they cannot merge with each other across
	// the still-live middle region.
	a.addFreeRegion(first, size)
	a.addFreeRegion(third, size)
	if got := a.regionCount(); got != 3 {
		t.Fatalf("expected 3 free regions (first, third, tail); got %d", got)
	}

	// Freeing the middle region must collapse everything back into one.
	a.addFreeRegion(second, size)
	if got := a.regionCount(); got != 1 {
		t.Errorf("expected all regions to coalesce into one; got %d", got)
	}
	if got := a.freeBytes(); got != regionSize {
		t.Errorf("expected %d free bytes after all frees; got %d", regionSize, got)
	}
}

func TestAllocExhaustion(t *testing.T) {
	const regionSize = uintptr(1024)
	start, cleanup := newTestRegion(regionSize)
	defer cleanup()

	var a linkedListAllocator
	a.init(start, regionSize)

	size, align := adjustLayout(regionSize, 8)
	if a.alloc(size, align) == 0 {
		t.Fatal("expected allocation of the entire region to succeed")
	}
	if got := a.alloc(16, 8); got != 0 {
		t.Errorf("expected allocation from an empty free list to fail; got 0x%x", got)
	}
}

func TestAdjustLayout(t *testing.T) {
	specs := []struct {
		size, align       uintptr
		expSize, expAlign uintptr
	}{
		// Requests smaller than a free list node are padded up.
		{1, 1, nodeSize, unsafe.Alignof(freeNode{})},
		// Sizes are rounded to the effective alignment.
		{100, 8, 104, 8},
		{100, 64, 128, 64},
	}

	for specIndex, spec := range specs {
		size, align := adjustLayout(spec.size, spec.align)
		if size != spec.expSize || align != spec.expAlign {
			t.Errorf("[spec %d] expected layout (%d, %d); got (%d, %d)", specIndex, spec.expSize, spec.expAlign, size, align)
		}
	}
}

func TestInitMapsHeapRegion(t *testing.T) {
	defer func(origMap func(vmm.Page, pmm.Frame, vmm.PageTableEntryFlag) *kernel.Error, origAlloc func() (pmm.Frame, *kernel.Error), origInit func(uintptr, uintptr)) {
		mapPageFn = origMap
		allocFrameFn = origAlloc
		initRegionFn = origInit
	}(mapPageFn, allocFrameFn, initRegionFn)

	var (
		nextFrame   pmm.Frame
		mappedPages []vmm.Page
		initStart   uintptr
		initSize    uintptr
	)
	allocFrameFn = func() (pmm.Frame, *kernel.Error) {
		nextFrame++
		return nextFrame, nil
	}
	mapPageFn = func(page vmm.Page, frame pmm.Frame, flags vmm.PageTableEntryFlag) *kernel.Error {
		if flags != vmm.FlagRW|vmm.FlagNoExecute {
			t.Errorf("unexpected map flags 0x%x", uintptr(flags))
		}
		mappedPages = append(mappedPages, page)
		return nil
	}
	initRegionFn = func(start, size uintptr) {
		initStart, initSize = start, size
	}

	if err := Init(); err != nil {
		t.Fatalf("unexpected Init error: %v", err)
	}

	expPages := int((heapSize + uintptr(mem.PageSize) - 1) / uintptr(mem.PageSize))
	if len(mappedPages) != expPages {
		t.Fatalf("expected Init to map %d pages; mapped %d", expPages, len(mappedPages))
	}
	for i, page := range mappedPages {
		if exp := vmm.PageFromAddress(heapStart + uintptr(i)*uintptr(mem.PageSize)); page != exp {
			t.Errorf("[page %d] expected page %d; got %d", i, exp, page)
		}
	}
	if initStart != heapStart || initSize != heapSize {
		t.Errorf("expected allocator region (0x%x, %d); got (0x%x, %d)", heapStart, heapSize, initStart, initSize)
	}
}

func TestInitFrameAllocationFailure(t *testing.T) {
	defer func(origAlloc func() (pmm.Frame, *kernel.Error), origInit func(uintptr, uintptr)) {
		allocFrameFn = origAlloc
		initRegionFn = origInit
	}(allocFrameFn, initRegionFn)

	allocFrameFn = func() (pmm.Frame, *kernel.Error) {
		return pmm.InvalidFrame, &kernel.Error{Module: "test", Message: "out of memory"}
	}
	initRegionFn = func(start, size uintptr) {
		t.Error("expected allocator init to be skipped when mapping fails")
	}

	if err := Init(); err != errInitFailed {
		t.Errorf("expected Init to return errInitFailed; got %v", err)
	}
}
