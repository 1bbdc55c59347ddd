// Package addr provides the kernel's typed physical/virtual address
// wrappers and the direct-mapped-window conversion contract between them.
package addr

import "fmt"

// FrameSize is the size in bytes of one physical frame / virtual page.
const FrameSize = 4096

// KernelBase is the virtual base of the direct-mapped kernel window.
// Both x86 and ARM map the window at a linear offset (virt = phys +
// KernelBase).
const KernelBase = 0xC0000000

// Phys is a physical address. The zero value represents PhysAddr::null(),
// which is deliberately never handed out as a usable frame (see the buddy
// allocator's frame-0 reservation, DESIGN.md Open Question #1).
type Phys uintptr

// Virt is a virtual address.
type Virt uintptr

// NullPhys is the reserved null physical address.
const NullPhys Phys = 0

// IsNull reports whether p is the null physical address.
func (p Phys) IsNull() bool { return p == NullPhys }

// IsNull reports whether v is the null virtual address.
func (v Virt) IsNull() bool { return v == 0 }

// Add returns p+n.
func (p Phys) Add(n uintptr) Phys { return p + Phys(n) }

// Sub returns p-n.
func (p Phys) Sub(n uintptr) Phys { return p - Phys(n) }

// Add returns v+n.
func (v Virt) Add(n uintptr) Virt { return v + Virt(n) }

// Sub returns v-n.
func (v Virt) Sub(n uintptr) Virt { return v - Virt(n) }

// AlignUp rounds p up to the next multiple of align (align must be a power of two).
func (p Phys) AlignUp(align uintptr) Phys {
	return Phys(alignUp(uintptr(p), align))
}

// AlignDown rounds p down to the previous multiple of align.
func (p Phys) AlignDown(align uintptr) Phys {
	return Phys(alignDown(uintptr(p), align))
}

// AlignUp rounds v up to the next multiple of align.
func (v Virt) AlignUp(align uintptr) Virt {
	return Virt(alignUp(uintptr(v), align))
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

func alignDown(v, align uintptr) uintptr {
	return v &^ (align - 1)
}

// windowEnd is the live bound of the direct-mapped kernel heap extent,
// set through SetWindowEnd and consulted by ToVirt/ToPhys. It starts
// at KernelBase with zero extent, meaning no conversions succeed until
// the bump allocator finalizes kernel memory (internal/bump.Finalize).
var windowEnd Virt = KernelBase

// SetWindowEnd records the current end of the direct-mapped kernel heap
// extent. Called once by internal/bump.Finalize; later calls only ever
// widen the window, matching the original's "memory_end" monotonic bound.
func SetWindowEnd(end Virt) {
	if end > windowEnd {
		windowEnd = end
	}
}

// WindowEnd returns the current end of the direct-mapped window.
func WindowEnd() Virt { return windowEnd }

// ToVirt converts p into the direct-mapped kernel window. It panics if
// the result falls outside [KernelBase, windowEnd) — the conversion is
// defined only inside that window per spec §3.
func (p Phys) ToVirt() Virt {
	v := Virt(uintptr(p) + KernelBase)
	if v >= windowEnd {
		panic(fmt.Sprintf("addr: phys->virt out of kernel window: %#x >= %#x", v, windowEnd))
	}
	return v
}

// ToPhys converts v back to a physical address. Panics if v lies outside
// the direct-mapped window [KernelBase, windowEnd).
func (v Virt) ToPhys() Phys {
	if v < KernelBase || v >= windowEnd {
		panic(fmt.Sprintf("addr: virt->phys out of kernel window [%#x, %#x): %#x", KernelBase, windowEnd, v))
	}
	return Phys(uintptr(v) - KernelBase)
}

func (p Phys) String() string { return fmt.Sprintf("Phys(%#x)", uintptr(p)) }
func (v Virt) String() string { return fmt.Sprintf("Virt(%#x)", uintptr(v)) }
