// Package bump implements the early watermark allocator used before the
// buddy and slab allocators exist. Grounded on
// original_source/Kernel/memory/kernel.rs (allocate_raw/allocate_uninit/
// memory_end): a single monotonically increasing virtual-address
// watermark, finalized once into the buddy frame array, the initial
// page-table descriptors, and the slab bootstrap cache.
package bump

import (
	"fmt"

	"waros/internal/addr"
)

type state int

const (
	stateAvailable state = iota
	stateFinalized
)

// Allocator is the process-wide early allocator. The zero value is not
// ready for use; call Init first.
type Allocator struct {
	watermark addr.Virt
	st        state
}

// global is the single early allocator instance, matching the original's
// static Force<KernelMemory>.
var global Allocator

// Init seeds the watermark at the end of the kernel image. Must be called
// exactly once, before any AllocateRaw call.
func Init(kernelEnd addr.Virt) {
	global = Allocator{watermark: kernelEnd, st: stateAvailable}
}

// AllocateRaw aligns the watermark up to align and advances it by size,
// returning the (unaligned-content, aligned-start) address. It panics if
// called after Finalize — matching the "FatalAllocationFailure: out of
// kernel space" taxonomy entry (spec §7): the bump allocator run out of
// its lifetime is always a fatal, uninitialization-path condition.
func AllocateRaw(size, align uintptr) addr.Virt {
	if global.st == stateFinalized {
		panic("bump: allocate after finalize: out of kernel space")
	}
	a := global.watermark.AlignUp(align)
	global.watermark = a.Add(size)
	return a
}

// Finalize rounds the watermark up to a frame boundary, records it as the
// kernel direct-map window extent (internal/addr.SetWindowEnd), and
// refuses all further allocation. One-shot: calling it twice panics.
func Finalize() addr.Virt {
	if global.st == stateFinalized {
		panic("bump: Finalize called twice")
	}
	end := global.watermark.AlignUp(addr.FrameSize)
	global.watermark = end
	global.st = stateFinalized
	addr.SetWindowEnd(end)
	return end
}

// Watermark returns the current watermark, for diagnostics.
func Watermark() addr.Virt { return global.watermark }

// String renders the allocator state for debug logging.
func (a Allocator) String() string {
	return fmt.Sprintf("bump.Allocator{watermark=%v finalized=%v}", a.watermark, a.st == stateFinalized)
}
