package vmm

import (
	"unsafe"

	"kernos/kernel/mem"
)

var (
	// ptePtrFn returns a pointer to the page table entry that lives at the
	// supplied virtual address. It is stored as a variable so tests can
	// redirect entry accesses to synthetic page tables allocated on the
	// host heap.
	ptePtrFn = ptePtr
)

func ptePtr(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}

// pageTableWalker is a visitor function invoked by walk for each page table
// entry on the path from the active table root to the entry that maps
// virtAddr. Returning false aborts the walk.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk descends the active page table hierarchy for virtAddr invoking
// walkFn with each visited entry. Page tables are accessed through the
// physical memory offset mapping: the table for each level lives at
// physMemOffset plus the frame address recorded in the parent entry.
//
// walk will not descend past an entry unless walkFn returns true for it.
// This allows the visitor to stop at non-present entries without walk ever
// dereferencing a frame that does not point to a page table.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	tableAddr := physMemOffset + activeRootFrame().Address()

	for level := uint8(0); level < pageLevels; level++ {
		entryIndex := (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		pte := (*pageTableEntry)(ptePtrFn(tableAddr + (entryIndex << mem.PointerShift)))

		if !walkFn(level, pte) {
			return
		}

		tableAddr = physMemOffset + pte.Frame().Address()
	}
}
