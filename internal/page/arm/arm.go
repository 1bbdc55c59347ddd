// Package arm implements internal/page.Table for the ARMv6/v7 two-level
// short-descriptor translation format. Grounded on
// original_source/Kernel/arch/arm/page.rs (FirstLevelDescriptor,
// SecondLevelDescriptor, PageTable::map_direct/map_memory), keeping its
// flat-coarse-table layout: every one of the 4096 first-level entries is
// a coarse-table descriptor pointing at its own reserved 256-entry slice
// of one large second-level array, so (like the teacher's mmu.go
// pre-allocating its L1/L2 region) no second-level table is ever
// allocated lazily.
package arm

import (
	"waros/internal/addr"
	"waros/internal/archsup"
	"waros/internal/buddy"
	"waros/internal/bump"
	"waros/internal/page"
)

const (
	fldEntries    = 4096 // one first-level descriptor per 1MiB of address space
	fldAlign      = 0x4000
	sldCoarseLen  = 256 // second-level descriptors per coarse table
	sldEntries    = fldEntries * sldCoarseLen
	sectionShift  = 20
	smallPageMask = 0xFFFFF000
)

// First-level descriptor type tags (bits[1:0] of each word), carrying the
// same extra high bits the original Rust constants do.
const (
	fldInvalidTag = 0b10000
	fldCoarseTag  = 0b10001
	fldSectionTag = 0b10010
)

// Second-level (coarse) descriptor type tags.
const (
	sldFaultTag = 0b00
	sldSmallTag = 0b10
)

const (
	apFull        uint32 = 0b11 // AP3: full access at every privilege level
	domainManager uint32 = 0b11 // accesses never generate a domain fault
)

func fldCoarseTable(tableAddr uint32) uint32 {
	return fldCoarseTag | (tableAddr & 0xFFFFFC00) | (domainManager << 5)
}

func sldSmall(phys uint32, cache, buffer bool) uint32 {
	e := uint32(sldSmallTag) | (phys & smallPageMask)
	e |= apFull << 10
	e |= apFull << 8
	e |= apFull << 6
	e |= apFull << 4
	if cache {
		e |= 1 << 3
	}
	if buffer {
		e |= 1 << 2
	}
	return e
}

func encodeSmallPage(f page.Flags) uint32 {
	return sldSmall(0, f.Cacheable, f.Buffered) &^ smallPageMask
}

// ttbr0Write, mmuEnable, and mmuDisable are implemented in assembly
// (the same linkage convention the teacher's mazboot/asm package uses
// for its coprocessor-register helpers); the Go side only declares
// their signatures.
//
//go:noescape
func ttbr0Write(phys uint32)

//go:noescape
func mmuEnable()

//go:noescape
func mmuDisable()

// Table is the ARMv6/v7 two-level page table: a flat 4096-entry
// first-level descriptor array, every entry a coarse-table descriptor,
// backed by one flat 4096*256-entry second-level array.
type Table struct {
	fld     []uint32
	sld     []uint32
	fldPhys addr.Phys
}

// New allocates and initializes the first- and second-level descriptor
// arrays from the bump allocator — both must exist before buddy.Init can
// materialize its own frame array, so neither can itself come from buddy.
func New() *Table {
	fldAddr := bump.AllocateRaw(fldEntries*4, fldAlign)
	sldAddr := bump.AllocateRaw(sldEntries*4, 4)

	fld := archsup.CastToSlice[uint32](uintptr(fldAddr), fldEntries)
	sld := archsup.CastToSlice[uint32](uintptr(sldAddr), sldEntries)
	for i := range sld {
		sld[i] = sldFaultTag
	}

	sldBase := uint32(uintptr(sldAddr.ToPhys()))
	for i := range fld {
		fld[i] = fldCoarseTable(sldBase + uint32(i*sldCoarseLen*4))
	}

	return &Table{fld: fld, sld: sld, fldPhys: fldAddr.ToPhys()}
}

// Enable turns the MMU on using t as the active translation table.
func (t *Table) Enable() { mmuEnable() }

// Disable turns the MMU off.
func (t *Table) Disable() { mmuDisable() }

// Set installs t's first-level descriptor table's physical address into
// TTBR0.
func (t *Table) Set() { ttbr0Write(uint32(t.fldPhys)) }

// MapDirect installs a linear-offset (virt = phys + addr.KernelBase)
// mapping for every 4KiB page in phys, using small-page second-level
// descriptors — the same direct-map convention internal/addr.Phys.ToVirt
// uses on every architecture.
func (t *Table) MapDirect(phys page.PhysRange, flags page.Flags) {
	pteFlags := encodeSmallPage(flags)

	start := phys.Start.AlignDown(addr.FrameSize)
	end := phys.End.AlignUp(addr.FrameSize)

	for p := start; p < end; p = p.Add(addr.FrameSize) {
		v := uintptr(p.ToVirt())
		fldIndex := v >> sectionShift
		sldIndex := fldIndex*sldCoarseLen + ((v >> 12) & 0xFF)

		t.sld[sldIndex] = (uint32(p) & smallPageMask) | pteFlags
	}
}

// MapMemory returns frame's direct-mapped virtual address: since
// MapDirect already covers the whole usable physical range at boot, a
// frame the buddy allocator later hands out needs no fresh page-table
// write, only the phys->virt conversion spec §4.4 calls "mapping the
// frame(s) into the kernel window".
func (t *Table) MapMemory(frame *buddy.PageFrame, size uintptr, flags page.Flags) addr.Virt {
	return frame.Addr().ToVirt()
}

// entryAt returns the raw second-level descriptor covering v, for
// diagnostics and tests.
func (t *Table) entryAt(v addr.Virt) uint32 {
	fldIndex := uintptr(v) >> sectionShift
	sldIndex := fldIndex*sldCoarseLen + ((uintptr(v) >> 12) & 0xFF)
	return t.sld[sldIndex]
}
