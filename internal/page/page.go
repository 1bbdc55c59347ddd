// Package page defines the page-table manager interface every target
// implements: a uniform map_direct/map_memory/enable/disable/set
// surface over whatever two-level descriptor format the architecture
// actually uses (spec §4.4). Concrete implementations live in
// internal/page/x86 and internal/page/arm.
package page

import (
	"waros/internal/addr"
	"waros/internal/buddy"
)

// Flags enumerate the mapping attributes the core ever needs to
// request; each architecture translates them into its own descriptor
// bits.
type Flags struct {
	Cacheable  bool
	Buffered   bool
	KernelOnly bool
	Writable   bool
}

// KernelDirect is the flag set used for the boot-time direct mapping of
// all usable RAM: cacheable, kernel-only, writable.
var KernelDirect = Flags{Cacheable: true, KernelOnly: true, Writable: true}

// PhysRange is a half-open physical address range to map.
type PhysRange struct {
	Start, End addr.Phys
}

// Table is the capability set spec §4.4 and spec §8's "Architecture
// polymorphism" name for arch::page::table(): one process-wide page
// table, built and owned by whichever target package (cmd/pc,
// cmd/armmach) constructs it.
type Table interface {
	// Enable turns the MMU on using this table as the active root.
	Enable()
	// Disable turns the MMU off.
	Disable()
	// Set installs this table as the current translation root without
	// touching the enable bit (used to reset/reload after a table edit).
	Set()
	// MapDirect maps phys at page granularity with flags at virt =
	// phys + addr.KernelBase, on both architectures.
	MapDirect(phys PhysRange, flags Flags)
	// MapMemory maps frame's backing block (frame.Size() bytes, or size
	// bytes for a multi-frame block from a higher order) into the
	// kernel window and returns the mapped virtual base. Returns the
	// zero Virt if no virtual range is available.
	MapMemory(frame *buddy.PageFrame, size uintptr, flags Flags) addr.Virt
}
