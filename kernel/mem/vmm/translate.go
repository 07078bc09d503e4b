package vmm

import (
	"kernos/kernel"
	"kernos/kernel/mem"
)

// Translate returns the physical address that corresponds to the supplied
// virtual address. It walks the active page table hierarchy and combines the
// frame recorded in the final entry with the page offset bits of virtAddr.
// Translate returns ErrInvalidMapping if any table on the path to the final
// entry is not present.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	physAddr := pte.Frame().Address() + PageOffset(virtAddr)
	return physAddr, nil
}

// PageOffset returns the offset of virtAddr within its containing page.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (uintptr(mem.PageSize) - 1)
}
