// Package buddy implements the physical frame allocator: a power-of-two
// buddy system over the frames discovered at boot. Grounded on
// original_source/Kernel/memory/buddy.rs (BuddyManager/PageFrame),
// adapted from Rust's Shared<PageFrame> intrusive pointers to
// array-index links, which sidestep Go's garbage collector entirely —
// the frame array is backing store, not GC-managed object graph.
package buddy

import (
	"unsafe"

	"waros/internal/addr"
	"waros/internal/archsup"
	"waros/internal/bump"
)

// MaxOrder bounds block size at 2^(MaxOrder-1) frames (order 10, ≈4MiB
// at a 4KiB frame size), per spec §7's named constant.
const MaxOrder = 11

const noLink int32 = -1

// Range is a half-open physical address range, typically sourced from
// an ATAG MEM tag or a multiboot memory-map entry of type Usable.
type Range struct {
	Start, End addr.Phys
}

// PageFrame is one entry per physical frame of usable RAM. Created once
// at Init and never destroyed; only InUse and the order mutate
// thereafter, matching spec §3's PageFrame lifecycle.
type PageFrame struct {
	self  int32
	base  addr.Phys
	order uint8
	inUse bool
	prev  int32
	next  int32
}

// Addr returns the frame's base physical address.
func (f *PageFrame) Addr() addr.Phys { return f.base }

// Order returns the frame's current buddy order.
func (f *PageFrame) Order() int { return int(f.order) }

// Size returns the byte size of the frame's current block.
func (f *PageFrame) Size() uintptr { return (1 << f.order) * addr.FrameSize }

// InUse reports whether the frame is currently allocated.
func (f *PageFrame) InUse() bool { return f.inUse }

// Manager owns the frame array and the MaxOrder free lists. Every
// PageFrame is on at most one free list; InUse == false iff it is on
// some free list (spec §3's BuddyManager invariant).
type Manager struct {
	frames   []PageFrame
	freeHead [MaxOrder]int32
}

var global *Manager

// Init materializes the frame array via the bump allocator (the buddy
// allocator does not exist yet to allocate its own metadata) and seeds
// the free lists from ranges, clipping each range to [kernelEnd,
// range.End) rounded inward to frame boundaries and filtering out
// sub-frame remainders, matching the original's filter_map step.
// PhysAddr(0) is never handed out as a usable frame (DESIGN.md Open
// Question #1): a range that would begin at address 0 starts one frame
// later, and padding frames beyond the last usable frame are marked
// permanently in-use with base addr.NullPhys.
func Init(totalSize uintptr, kernelEnd addr.Phys, ranges []Range) *Manager {
	nframes := int(totalSize / addr.FrameSize)

	backing := bump.AllocateRaw(uintptr(nframes)*unsafe.Sizeof(PageFrame{}), unsafe.Alignof(PageFrame{}))
	frames := archsup.CastToSlice[PageFrame](uintptr(backing), nframes)

	m := &Manager{frames: frames}
	for o := range m.freeHead {
		m.freeHead[o] = noLink
	}

	i := 0
	for _, r := range ranges {
		start := r.Start
		if start < kernelEnd {
			start = kernelEnd
		}
		start = start.AlignUp(addr.FrameSize)
		if start.IsNull() {
			start = start.Add(addr.FrameSize)
		}
		end := r.End.AlignDown(addr.FrameSize)
		if start+addr.FrameSize > end {
			continue
		}
		nf := int((end - start) / addr.FrameSize)

		order := minInt(MaxOrder-1, floorLog2(nf))
		blockLen := 1 << order

		for o := order; o >= 0; o-- {
			for nf >= blockLen {
				topIndex := i
				end := i + blockLen
				for i < end {
					m.frames[i] = PageFrame{self: int32(i), base: start, order: 0, inUse: false, prev: noLink, next: noLink}
					start = start.Add(addr.FrameSize)
					i++
				}
				m.frames[topIndex].order = uint8(o)
				m.pushFront(o, int32(topIndex))
				nf -= blockLen
			}
			blockLen >>= 1
		}
	}
	total := i

	for j := total; j < len(m.frames); j++ {
		m.frames[j] = PageFrame{self: int32(j), base: addr.NullPhys, order: 0, inUse: true, prev: noLink, next: noLink}
	}

	global = m
	return m
}

// GetManager returns the process-wide buddy manager. Panics if Init has
// not run yet.
func GetManager() *Manager {
	if global == nil {
		panic("buddy: Manager() called before Init")
	}
	return global
}

// Allocate returns a free frame of exactly 2^order frames, splitting a
// larger block top-down if no exact match is free. The upper half of
// each split is pushed to the front of its list so later allocations
// prefer locally contiguous frames (spec §4.2, "Ordering & tie-breaks").
func (m *Manager) Allocate(order int) (*PageFrame, bool) {
	if order < 0 || order >= MaxOrder {
		panic("buddy: Allocate: order out of range")
	}

	matched := -1
	for o := order; o < MaxOrder; o++ {
		if m.freeHead[o] != noLink {
			matched = o
			break
		}
	}
	if matched < 0 {
		return nil, false
	}

	idx := m.popFront(matched)
	for divOrder := matched - 1; divOrder >= order; divOrder-- {
		half := idx + int32(1<<uint(divOrder))
		m.frames[half].inUse = false
		m.frames[half].order = uint8(divOrder)
		m.pushFront(divOrder, half)
	}

	f := &m.frames[idx]
	f.inUse = true
	f.order = uint8(order)
	return f, true
}

// Free returns frame to the pool, merging with its buddy while the
// buddy is free, same order, and physically contiguous.
func (m *Manager) Free(frame *PageFrame) {
	if !frame.inUse {
		panic("buddy: Free: frame not in use")
	}

	topIndex := frame.self
	order := int(frame.order)

	for order < MaxOrder-1 {
		buddyIndex := topIndex ^ int32(1<<uint(order))
		if buddyIndex < 0 || int(buddyIndex) >= len(m.frames) {
			break
		}
		if !m.isContiguous(topIndex, buddyIndex) {
			break
		}
		buddy := &m.frames[buddyIndex]
		if buddy.inUse || int(buddy.order) != order {
			break
		}

		m.remove(order, buddyIndex)
		topIndex &^= int32(1 << uint(order))
		order++
	}

	top := &m.frames[topIndex]
	top.inUse = false
	top.order = uint8(order)
	m.pushFront(order, topIndex)
}

// TotalSize returns the total bytes spanned by the frame array,
// including permanently-reserved padding frames.
func (m *Manager) TotalSize() uint64 {
	return uint64(len(m.frames)) * addr.FrameSize
}

// FreeSize returns the sum of bytes across every frame not in use.
func (m *Manager) FreeSize() uint64 {
	var n uint64
	for i := range m.frames {
		if !m.frames[i].inUse {
			n += addr.FrameSize
		}
	}
	return n
}

func (m *Manager) isContiguous(a, b int32) bool {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return m.frames[lo].base.Add(uintptr(hi-lo)*addr.FrameSize) == m.frames[hi].base
}

func (m *Manager) pushFront(order int, idx int32) {
	head := m.freeHead[order]
	m.frames[idx].prev = noLink
	m.frames[idx].next = head
	if head != noLink {
		m.frames[head].prev = idx
	}
	m.freeHead[order] = idx
}

func (m *Manager) popFront(order int) int32 {
	idx := m.freeHead[order]
	if idx == noLink {
		panic("buddy: popFront: empty list")
	}
	m.remove(order, idx)
	return idx
}

func (m *Manager) remove(order int, idx int32) {
	f := &m.frames[idx]
	if f.prev != noLink {
		m.frames[f.prev].next = f.next
	} else {
		m.freeHead[order] = f.next
	}
	if f.next != noLink {
		m.frames[f.next].prev = f.prev
	}
	f.prev, f.next = noLink, noLink
}

// OrderBySize returns the smallest order whose block size is ≥ size, or
// false if that would exceed MaxOrder.
func OrderBySize(size uintptr) (int, bool) {
	if size == 0 {
		panic("buddy: OrderBySize: size must be > 0")
	}
	nframes := (size + addr.FrameSize - 1) / addr.FrameSize
	order := floorLog2(int(nframes))
	if nframes > (1 << uint(order)) {
		order++
	}
	if order >= MaxOrder {
		return 0, false
	}
	return order, true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// floorLog2 returns floor(log2(n)) for n >= 1.
func floorLog2(n int) int {
	if n < 1 {
		n = 1
	}
	l := 0
	for (1 << uint(l+1)) <= n {
		l++
	}
	return l
}
