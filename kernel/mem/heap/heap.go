// Package heap implements the kernel heap as a linked list allocator. Free
// regions are tracked by nodes embedded in the regions themselves and kept
// sorted by address, which allows freed neighbors to be merged eagerly and
// keeps fragmentation bounded for the kernel's small allocation workload.
package heap

import (
	"unsafe"

	"kernos/kernel"
	"kernos/kernel/mem"
	"kernos/kernel/mem/pmm/allocator"
	"kernos/kernel/mem/vmm"
	"kernos/kernel/sync"
)

const (
	// heapStart is the virtual address where the kernel heap region is
	// mapped. The address lies in otherwise unused canonical address space
	// so stray pointers into the heap are easy to recognize in fault
	// dumps.
	heapStart = uintptr(0x4444_4444_0000)

	// heapSize is the total size of the kernel heap.
	heapSize = uintptr(100 << 10)
)

var (
	heapAllocator linkedListAllocator
	heapLock      sync.IrqSpinlock

	// mapPageFn, allocFrameFn and initRegionFn are overridable for tests
	// that exercise Init without a live page table hierarchy.
	mapPageFn    = vmm.Map
	allocFrameFn = allocator.AllocFrame
	initRegionFn = heapAllocator.init

	// ErrOutOfMemory is returned by Alloc when no free region can satisfy
	// the requested size and alignment.
	ErrOutOfMemory = &kernel.Error{Module: "heap", Message: "out of memory"}

	errInitFailed = &kernel.Error{Module: "heap", Message: "could not map heap region"}
)

// freeNode describes a free heap region. Nodes live inside the regions they
// describe; the region base address doubles as the node address.
type freeNode struct {
	size uintptr
	next *freeNode
}

// nodeSize is the minimum region size the allocator can track.
const nodeSize = unsafe.Sizeof(freeNode{})

// Init maps the heap region into the active address space, backing each page
// with a freshly allocated physical frame, and hands the region to the
// allocator as one initial free block.
func Init() *kernel.Error {
	for offset := uintptr(0); offset < heapSize; offset += uintptr(mem.PageSize) {
		frame, err := allocFrameFn()
		if err != nil {
			return errInitFailed
		}

		page := vmm.PageFromAddress(heapStart + offset)
		if err := mapPageFn(page, frame, vmm.FlagRW|vmm.FlagNoExecute); err != nil {
			return errInitFailed
		}
	}

	initRegionFn(heapStart, heapSize)
	return nil
}

// Alloc reserves a heap region of at least size bytes aligned to align and
// returns its address. The align argument must be a power of two. The same
// size and align values must be passed to Free when releasing the region.
func Alloc(size, align uintptr) (uintptr, *kernel.Error) {
	size, align = adjustLayout(size, align)

	heapLock.Acquire()
	addr := heapAllocator.alloc(size, align)
	heapLock.Release()

	if addr == 0 {
		return 0, ErrOutOfMemory
	}
	return addr, nil
}

// Free returns the region at addr back to the allocator. The size and align
// values must match the ones passed to the Alloc call that produced addr.
func Free(addr, size, align uintptr) {
	size, _ = adjustLayout(size, align)

	heapLock.Acquire()
	heapAllocator.addFreeRegion(addr, size)
	heapLock.Release()
}

// adjustLayout pads the requested layout so that any region handed out can
// later hold a free list node again.
func adjustLayout(size, align uintptr) (uintptr, uintptr) {
	if align < unsafe.Alignof(freeNode{}) {
		align = unsafe.Alignof(freeNode{})
	}
	size = alignUp(size, align)
	if size < nodeSize {
		size = nodeSize
	}
	return size, align
}

func alignUp(value, align uintptr) uintptr {
	return (value + align - 1) &^ (align - 1)
}

// linkedListAllocator tracks free heap regions in an address-ordered singly
// linked list threaded through the regions themselves. head is a sentinel
// node that never describes memory.
type linkedListAllocator struct {
	head freeNode
}

func (a *linkedListAllocator) init(start, size uintptr) {
	a.head.size = 0
	a.head.next = nil
	a.addFreeRegion(start, size)
}

// alloc finds the first (lowest address) free region that can satisfy the
// requested layout, carves the allocation out of it and returns the
// allocation address. It returns 0 when no region fits.
func (a *linkedListAllocator) alloc(size, align uintptr) uintptr {
	prev := &a.head
	for node := a.head.next; node != nil; prev, node = node, node.next {
		nodeStart := uintptr(unsafe.Pointer(node))
		nodeEnd := nodeStart + node.size

		allocStart := alignUp(nodeStart, align)
		allocEnd := allocStart + size
		if allocEnd > nodeEnd {
			continue
		}

		// Both cut-offs must remain large enough to hold a node or the
		// memory would leak out of the free list.
		frontPad := allocStart - nodeStart
		if frontPad > 0 && frontPad < nodeSize {
			continue
		}
		tailPad := nodeEnd - allocEnd
		if tailPad > 0 && tailPad < nodeSize {
			continue
		}

		prev.next = node.next
		if frontPad > 0 {
			a.addFreeRegion(nodeStart, frontPad)
		}
		if tailPad > 0 {
			a.addFreeRegion(allocEnd, tailPad)
		}
		return allocStart
	}

	return 0
}

// addFreeRegion inserts the region into the free list keeping it sorted by
// address and merges the region with adjacent neighbors.
func (a *linkedListAllocator) addFreeRegion(addr, size uintptr) {
	prev := &a.head
	for node := a.head.next; node != nil && uintptr(unsafe.Pointer(node)) < addr; prev, node = node, node.next {
	}
	next := prev.next

	// Merge with the following region if the two are contiguous.
	if next != nil && addr+size == uintptr(unsafe.Pointer(next)) {
		size += next.size
		next = next.next
	}

	// Merge into the preceding region if contiguous; otherwise emit a new
	// node at the region base.
	if prev != &a.head && uintptr(unsafe.Pointer(prev))+prev.size == addr {
		prev.size += size
		prev.next = next
		return
	}

	node := (*freeNode)(unsafe.Pointer(addr))
	node.size = size
	node.next = next
	prev.next = node
}

// freeBytes returns the total number of bytes tracked by the free list.
func (a *linkedListAllocator) freeBytes() uintptr {
	var total uintptr
	for node := a.head.next; node != nil; node = node.next {
		total += node.size
	}
	return total
}

// regionCount returns the number of distinct free regions.
func (a *linkedListAllocator) regionCount() int {
	var count int
	for node := a.head.next; node != nil; node = node.next {
		count++
	}
	return count
}
