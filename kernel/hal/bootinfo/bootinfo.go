// Package bootinfo provides access to the information handed off by the
// bootloader: the physical memory map, the location of the kernel image and
// the fixed virtual offset at which the entire physical address space has
// been mapped. The hand-off is consumed exactly once at kernel init and is
// never revalidated.
package bootinfo

// MemoryRegionType describes the status of a memory map region.
type MemoryRegionType uint32

const (
	// RegionUsable indicates that the region is free for use by the kernel.
	RegionUsable MemoryRegionType = iota + 1

	// RegionReserved indicates that the region must not be touched.
	RegionReserved

	// RegionBootInfo indicates that the region stores the boot information
	// structures. It must not be reused while the kernel is alive.
	RegionBootInfo

	// RegionKernel indicates that the region contains the loaded kernel
	// image and its page tables.
	RegionKernel
)

// String implements fmt.Stringer for memory region types.
func (t MemoryRegionType) String() string {
	switch t {
	case RegionUsable:
		return "usable"
	case RegionReserved:
		return "reserved"
	case RegionBootInfo:
		return "bootinfo"
	case RegionKernel:
		return "kernel"
	default:
		return "unknown"
	}
}

// MemoryRegion describes a contiguous physical memory region reported by the
// bootloader. Region extents are not guaranteed to be page-aligned.
type MemoryRegion struct {
	// PhysAddress is the physical start address of the region.
	PhysAddress uint64

	// Length is the region size in bytes.
	Length uint64

	// Type describes whether the kernel may allocate from this region.
	Type MemoryRegionType
}

// BootInfo describes the bootloader hand-off.
type BootInfo struct {
	// PhysMemOffset is the virtual address at which physical address 0 has
	// been mapped. Adding this offset to any physical address yields a
	// virtual address through which that physical memory can be accessed.
	PhysMemOffset uintptr

	// KernelStart and KernelEnd describe the physical extents of the
	// loaded kernel image.
	KernelStart, KernelEnd uintptr

	// MemoryMap lists the physical memory regions in the order reported
	// by the bootloader.
	MemoryMap []MemoryRegion
}

var info *BootInfo

// Set records the boot information passed by the bootloader entry code. It
// must be called exactly once before any other function in this package.
func Set(bi *BootInfo) {
	info = bi
}

// Get returns the recorded boot information or nil if Set has not been
// called yet.
func Get() *BootInfo {
	return info
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region. If
// the visitor returns false, the iteration stops.
type MemRegionVisitor func(*MemoryRegion) bool

// VisitMemRegions iterates over the memory map in bootloader order and
// invokes the supplied visitor for each region.
func VisitMemRegions(visitor MemRegionVisitor) {
	if info == nil {
		return
	}

	for i := range info.MemoryMap {
		if !visitor(&info.MemoryMap[i]) {
			return
		}
	}
}
