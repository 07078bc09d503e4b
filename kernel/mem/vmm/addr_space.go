package vmm

import (
	"kernos/kernel"
	"kernos/kernel/mem"
)

var (
	// earlyReserveRegionPtr tracks the last reserved virtual address.
	// Reservations are handed out in a descending direction starting at
	// the ceiling of the early reserve region.
	earlyReserveRegionPtr = earlyReserveCeiling

	errEarlyReserveNoSpace = &kernel.Error{Module: "vmm", Message: "early reserve region exhausted"}
)

// EarlyReserveRegion reserves a page-aligned contiguous virtual memory region
// of the requested size and returns its starting address. No physical frames
// are associated with the region; callers are expected to Map the pages they
// intend to touch. The Go allocator bootstrap code uses this to carve out
// address space before the full memory manager is online.
func EarlyReserveRegion(size mem.Size) (uintptr, *kernel.Error) {
	size = (size + (mem.PageSize - 1)) & ^(mem.PageSize - 1)

	if uintptr(size) > earlyReserveRegionPtr {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveRegionPtr -= uintptr(size)
	return earlyReserveRegionPtr, nil
}
