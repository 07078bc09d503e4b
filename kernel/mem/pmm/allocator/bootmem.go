// Package allocator implements the kernel's physical frame allocator.
package allocator

import (
	"kernos/kernel"
	"kernos/kernel/hal/bootinfo"
	"kernos/kernel/kfmt"
	"kernos/kernel/mem"
	"kernos/kernel/mem/pmm"
)

var (
	// bootMemAllocatorInst is the allocator instance used for all physical
	// frame allocations.
	bootMemAllocatorInst bootMemAllocator

	// ErrOutOfMemory is returned by AllocFrame when all usable memory
	// regions have been exhausted. Callers that require the frame for a
	// mapping operation must propagate this error; it is never safe to
	// ignore.
	ErrOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// bootMemAllocator implements a rudimentary physical memory allocator on top
// of the memory map handed off by the bootloader.
//
// The allocator subdivides each usable region into page-sized frames and
// hands out the next free frame, skipping any frame that overlaps the loaded
// kernel image. Allocations are tracked via an internal cursor that contains
// the last allocated frame; the cursor only ever moves forward, which is
// what guarantees that no frame is handed out twice.
//
// Due to the way that the allocator works, it is not possible to free
// allocated frames. This is a known limitation of the minimal design and not
// an oversight: nothing in the boot path ever returns a frame, and a more
// advanced allocator would need to be bootstrapped on top of this one to
// support reclamation.
type bootMemAllocator struct {
	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// lastAllocFrame tracks the last allocated frame number.
	lastAllocFrame pmm.Frame

	// Keep track of kernel location so we exclude this region.
	kernelStartAddr, kernelEndAddr   uintptr
	kernelStartFrame, kernelEndFrame pmm.Frame
}

// init sets up the boot memory allocator internal state.
func (alloc *bootMemAllocator) init(kernelStart, kernelEnd uintptr) {
	// round down kernel start to the nearest page and round up kernel end
	// to the nearest page.
	pageSizeMinus1 := uintptr(mem.PageSize - 1)
	alloc.allocCount = 0
	alloc.lastAllocFrame = 0
	alloc.kernelStartAddr = kernelStart
	alloc.kernelEndAddr = kernelEnd
	alloc.kernelStartFrame = pmm.Frame((kernelStart & ^pageSizeMinus1) >> mem.PageShift)
	alloc.kernelEndFrame = pmm.Frame(((kernelEnd+pageSizeMinus1) & ^pageSizeMinus1)>>mem.PageShift) - 1
}

// AllocFrame scans the system memory regions reported by the bootloader and
// reserves the next available free frame.
//
// AllocFrame returns ErrOutOfMemory if no more memory can be allocated.
func (alloc *bootMemAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	var err = ErrOutOfMemory

	bootinfo.VisitMemRegions(func(region *bootinfo.MemoryRegion) bool {
		// Ignore reserved regions and regions smaller than a single page
		if region.Type != bootinfo.RegionUsable || region.Length < uint64(mem.PageSize) {
			return true
		}

		// Reported addresses may not be page-aligned; round up to get
		// the start frame and round down to get the end frame
		pageSizeMinus1 := uint64(mem.PageSize - 1)
		regionStartFrame := pmm.Frame(((region.PhysAddress + pageSizeMinus1) & ^pageSizeMinus1) >> mem.PageShift)
		regionEndFrame := pmm.Frame(((region.PhysAddress+region.Length) & ^pageSizeMinus1)>>mem.PageShift) - 1

		// Skip over already allocated regions
		if alloc.lastAllocFrame >= regionEndFrame {
			return true
		}

		// If the last frame came from a previous region and the kernel
		// image is located at the beginning of this region OR we are in
		// the current region but lastAllocFrame + 1 points to the
		// kernel start we need to jump to the page following the kernel
		// end frame
		if (alloc.lastAllocFrame <= regionStartFrame && alloc.kernelStartFrame == regionStartFrame) ||
			(alloc.lastAllocFrame <= regionEndFrame && alloc.lastAllocFrame+1 == alloc.kernelStartFrame) {
			alloc.lastAllocFrame = alloc.kernelEndFrame + 1
		} else if alloc.lastAllocFrame < regionStartFrame || alloc.allocCount == 0 {
			// we are in the previous region and need to jump to this one OR
			// this is the first allocation and the region begins at frame 0
			alloc.lastAllocFrame = regionStartFrame
		} else {
			// we are in the region and we can select the next frame
			alloc.lastAllocFrame++
		}

		// The above adjustment might push lastAllocFrame outside of the
		// region end (e.g kernel ends at last page in the region)
		if alloc.lastAllocFrame > regionEndFrame {
			return true
		}

		err = nil
		return false
	})

	if err != nil {
		return pmm.InvalidFrame, ErrOutOfMemory
	}

	alloc.allocCount++
	return alloc.lastAllocFrame, nil
}

// printMemoryMap scans the memory region information provided by the
// bootloader and prints out the system's memory map.
func (alloc *bootMemAllocator) printMemoryMap() {
	kfmt.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mem.Size
	bootinfo.VisitMemRegions(func(region *bootinfo.MemoryRegion) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == bootinfo.RegionUsable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})
	kfmt.Printf("[boot_mem_alloc] available memory: %dKb\n", uint64(totalFree/mem.Kb))
	kfmt.Printf("[boot_mem_alloc] kernel loaded at 0x%x - 0x%x\n", alloc.kernelStartAddr, alloc.kernelEndAddr)
	kfmt.Printf("[boot_mem_alloc] size: %d bytes, reserved pages: %d\n",
		uint64(alloc.kernelEndAddr-alloc.kernelStartAddr),
		uint64(alloc.kernelEndFrame-alloc.kernelStartFrame+1),
	)
}

// Init sets up the boot memory allocator using the kernel image extents
// recorded in the boot information and prints out the system memory map.
func Init(kernelStart, kernelEnd uintptr) {
	bootMemAllocatorInst.init(kernelStart, kernelEnd)
	bootMemAllocatorInst.printMemoryMap()
}

// AllocFrame reserves the next available physical frame and returns it. It
// returns ErrOutOfMemory once all usable regions have been exhausted.
func AllocFrame() (pmm.Frame, *kernel.Error) {
	return bootMemAllocatorInst.AllocFrame()
}
