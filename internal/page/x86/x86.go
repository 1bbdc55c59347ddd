// Package x86 implements internal/page.Table for the x86 32-bit
// protected-mode two-level page directory/page table format. Grounded
// on original_source/Kernel/arch/x86_common/page.rs
// (PageDirectoryEntry/PageTableEntry/PageTable), keeping its
// "preallocate every second-level table up front" trick: rather than
// allocate page tables lazily per directory entry, the whole 4 MiB
// flat page-table region is reserved once at boot from the bump
// allocator, matching the teacher's linker-provided
// __page_tables_start/__page_tables_end reservation in memory.go.
package x86

import (
	"waros/internal/addr"
	"waros/internal/archsup"
	"waros/internal/buddy"
	"waros/internal/bump"
	"waros/internal/page"
)

const (
	pdEntries = 1024
	ptEntries = 1024 * 1024 // one flat array covering every PDE's page table
)

const (
	flagPresent      uint32 = 0x001
	flagRW           uint32 = 0x002
	flagUser         uint32 = 0x004
	flagWriteThrough uint32 = 0x008
	flagCacheDisable uint32 = 0x010
	flagsKernelPDE          = flagPresent | flagRW
)

func encodeFlags(f page.Flags) uint32 {
	flags := flagPresent
	if f.Writable {
		flags |= flagRW
	}
	if !f.KernelOnly {
		flags |= flagUser
	}
	if f.Buffered {
		flags |= flagWriteThrough
	}
	if !f.Cacheable {
		flags |= flagCacheDisable
	}
	return flags
}

// cr3Write, cr4SetPSE, and cr4ClearPSE are implemented in assembly
// (linked in via the same convention as the teacher's mazboot/asm
// package's GetLinkerSymbol family); the Go side only declares their
// signatures.
//
//go:noescape
func cr3Write(phys uint32)

//go:noescape
func cr4SetPSE()

//go:noescape
func cr4ClearPSE()

// Table is the x86 two-level page directory + flat page-table array.
type Table struct {
	pd     []uint32 // pdEntries entries, each (pt-frame-number << 12) | flags
	pt     []uint32 // ptEntries entries, each (frame-number << 12) | flags
	pdPhys addr.Phys
}

// New allocates and zeroes the root directory and the full flat
// page-table array from the bump allocator — both must exist before
// buddy.Init can even materialize its own frame array, so they cannot
// themselves come from buddy.
func New() *Table {
	pdAddr := bump.AllocateRaw(pdEntries*4, addr.FrameSize)
	ptAddr := bump.AllocateRaw(ptEntries*4, addr.FrameSize)

	pd := archsup.CastToSlice[uint32](uintptr(pdAddr), pdEntries)
	pt := archsup.CastToSlice[uint32](uintptr(ptAddr), ptEntries)
	for i := range pt {
		pt[i] = 0
	}

	ptBaseFrame := uint32(uintptr(ptAddr.ToPhys()) >> 12)
	for i := range pd {
		pd[i] = (ptBaseFrame + uint32(i)) << 12
	}

	return &Table{pd: pd, pt: pt, pdPhys: pdAddr.ToPhys()}
}

// Enable turns on CR4's PSE-adjacent MMU enable bit.
func (t *Table) Enable() { cr4SetPSE() }

// Disable turns the MMU off.
func (t *Table) Disable() { cr4ClearPSE() }

// Set installs t's root directory's physical address into CR3.
func (t *Table) Set() { cr3Write(uint32(t.pdPhys)) }

// MapDirect installs a linear-offset (virt = phys + addr.KernelBase)
// identity-style mapping for every page in phys, at page granularity.
func (t *Table) MapDirect(phys page.PhysRange, flags page.Flags) {
	pteFlags := encodeFlags(flags)

	start := phys.Start.AlignDown(addr.FrameSize)
	end := phys.End.AlignUp(addr.FrameSize)

	for p := start; p < end; p = p.Add(addr.FrameSize) {
		v := p.ToVirt()
		pdIndex := (uintptr(v) >> 22) & 0x3FF
		ptIndex := (uintptr(v) >> 12) & 0x3FF

		t.pd[pdIndex] = (t.pd[pdIndex] &^ 0xFFF) | flagsKernelPDE
		flat := pdIndex*1024 + ptIndex
		t.pt[flat] = (uint32(p) &^ 0xFFF) | pteFlags
	}
}

// MapMemory returns frame's already-direct-mapped virtual address:
// since MapDirect covers the whole usable physical range at boot, the
// kernel never needs a second, separate mapping step for a frame the
// buddy allocator later hands out — it only needs the phys->virt
// conversion spec §4.4 calls "mapping the frame(s) into the kernel
// window".
func (t *Table) MapMemory(frame *buddy.PageFrame, size uintptr, flags page.Flags) addr.Virt {
	return frame.Addr().ToVirt()
}

// entryAt returns the raw PDE/PTE pair covering v, for diagnostics and
// tests.
func (t *Table) entryAt(v addr.Virt) (pde, pte uint32) {
	pdIndex := (uintptr(v) >> 22) & 0x3FF
	ptIndex := (uintptr(v) >> 12) & 0x3FF
	return t.pd[pdIndex], t.pt[pdIndex*1024+ptIndex]
}
