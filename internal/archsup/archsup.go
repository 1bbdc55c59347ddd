// Package archsup collects the small set of architecture-dependent
// primitives the rest of the kernel core names but never implements
// itself: raw pointer casts, context switch, and the interrupt-gate
// capability set (spec §8, "Architecture polymorphism"). Concrete
// bodies live in _x86.go/_arm.go files selected by build tag, mirroring
// the teacher's qemuvirt/!qemuvirt split; this file holds the
// architecture-independent helpers adapted from the teacher's
// memory.go (getLinkerSymbol/castToPointer/addToPointer family).
package archsup

import "unsafe"

// CastToPointer converts a raw address to a typed pointer, hiding the
// unsafe.Pointer conversion at every call site that needs one.
//
//go:nosplit
func CastToPointer[T any](addr uintptr) *T {
	return (*T)(unsafe.Pointer(addr))
}

// CastToSlice reinterprets addr as the backing array of a []T of length
// n. Used to materialize the buddy frame array and slab object areas
// from bump/buddy-allocated raw memory.
//
//go:nosplit
func CastToSlice[T any](addr uintptr, n int) []T {
	return unsafe.Slice(CastToPointer[T](addr), n)
}

// PointerToUintptr returns the address a pointer refers to.
//
//go:nosplit
func PointerToUintptr(ptr unsafe.Pointer) uintptr {
	return uintptr(ptr)
}

// AddToPointer offsets ptr by offset bytes.
//
//go:nosplit
func AddToPointer(ptr unsafe.Pointer, offset uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(ptr) + offset)
}

// SubtractFromPointer offsets ptr backward by offset bytes.
//
//go:nosplit
func SubtractFromPointer(ptr unsafe.Pointer, offset uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(ptr) - offset)
}

// Capabilities is the compile-time-selected capability set the core
// calls into for context switching and interrupt gating (spec §8). Each target (cmd/pc, cmd/armmach) supplies one
// concrete value built from its _x86.go/_arm.go primitives.
type Capabilities struct {
	// Switch performs a full context switch from the current stack
	// into the task whose saved stack pointer is *to, storing the
	// outgoing stack pointer into *from first. Never returns directly;
	// control resumes here only when some later switch resumes *from.
	Switch func(from, to *uintptr)

	// Leap discards the current context and jumps directly into the
	// saved stack pointer to; the scheduler uses it when a task has
	// terminated, where there is no "from" worth saving.
	Leap func(to uintptr)

	// InterruptEnable/Disable/Restore/Wait form the
	// interrupt-gate capability (spec §8's arch::interrupt::*).
	InterruptEnable  func()
	InterruptDisable func() uintptr // returns the prior flag state
	InterruptRestore func(prior uintptr)
	InterruptWait    func() // halt until next interrupt (hlt/wfi)
}

// Critical runs fn with interrupts disabled, restoring the prior state
// on every exit path including panics. Grounded on spec §8's
// "Interrupt-disable bracketing": nesting is supported because
// InterruptDisable/Restore save-and-restore rather than
// enable-unconditionally.
func (c Capabilities) Critical(fn func()) {
	prior := c.InterruptDisable()
	defer c.InterruptRestore(prior)
	fn()
}
