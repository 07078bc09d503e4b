package vmm

import (
	"kernos/kernel"
	"kernos/kernel/cpu"
	"kernos/kernel/mem"
	"kernos/kernel/mem/pmm"
)

var (
	// frameAllocator points to a frame allocator function that is used by
	// Map to allocate backing frames for intermediate page tables.
	frameAllocator FrameAllocatorFn

	// flushTLBEntryFn and zeroTableFn are hooks that tests can override to
	// avoid touching real hardware state.
	flushTLBEntryFn = cpu.FlushTLBEntry
	zeroTableFn     = zeroTable

	// ErrAlreadyMapped is returned by Map when the target page already has
	// a live mapping and FlagOverwrite was not supplied.
	ErrAlreadyMapped = &kernel.Error{Module: "vmm", Message: "page is already mapped to a frame"}

	// ErrFrameAllocationFailed is returned by Map when the backing frame
	// allocator ran out of frames while building an intermediate page
	// table. The mapping is guaranteed not to have been installed.
	ErrFrameAllocationFailed = &kernel.Error{Module: "vmm", Message: "could not allocate page table frame"}
)

// FrameAllocatorFn describes a function that can allocate physical frames.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// SetFrameAllocator registers a frame allocator function that will be used by
// the vmm code when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

// Map establishes a mapping from the virtual page to the physical frame using
// the currently active page table hierarchy. Any intermediate page tables
// missing from the path to the final entry are allocated on demand via the
// registered frame allocator and zero-filled before use.
//
// If the page is already mapped and flags does not include FlagOverwrite, Map
// fails with ErrAlreadyMapped and the existing mapping is left untouched. If
// an intermediate table cannot be allocated, Map fails with
// ErrFrameAllocationFailed; in that case the final entry is never written so
// a failed Map has no visible effect on the address space.
func Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			if pte.HasFlags(FlagPresent) && !flagsInclude(flags, FlagOverwrite) {
				err = ErrAlreadyMapped
				return false
			}

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | (flags &^ FlagOverwrite))
			flushTLBEntryFn(page.Address())
			return false
		}

		if !pte.HasFlags(FlagPresent) {
			newTableFrame, allocErr := frameAllocator()
			if allocErr != nil {
				err = ErrFrameAllocationFailed
				return false
			}

			zeroTableFn(newTableFrame)
			pte.SetFrame(newTableFrame)
			// Intermediate entries stay permissive; the final entry
			// enforces the effective access flags.
			pte.SetFlags(FlagPresent | FlagRW)
		}

		return true
	})

	return err
}

// Unmap removes the mapping for the virtual page from the currently active
// page table hierarchy and invalidates the TLB entry for its address. It
// returns ErrInvalidMapping if the page is not currently mapped. The frame
// previously backing the page is not released; the boot allocator cannot
// reclaim frames.
func Unmap(page Page) *kernel.Error {
	pte, err := pteForAddress(page.Address())
	if err != nil {
		return err
	}

	pte.ClearFlags(FlagPresent)
	flushTLBEntryFn(page.Address())
	return nil
}

// zeroTable clears the page-sized block of memory that backs a freshly
// allocated page table frame. The frame contents are accessed through the
// physical memory offset mapping.
func zeroTable(frame pmm.Frame) {
	mem.Memset(physMemOffset+frame.Address(), 0, mem.PageSize)
}

func flagsInclude(flags, mask PageTableEntryFlag) bool {
	return flags&mask == mask
}
