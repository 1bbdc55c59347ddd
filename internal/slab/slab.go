// Package slab implements the kernel object allocator: named typed
// caches plus a bank of 17 generic size-class caches serving the
// byte-oriented allocate(size, align) interface. Grounded on
// original_source/Kernel/memory/slab.rs (SlabManager/SlabAllocator<T>/
// Slab<T>, the bufctl free chain, the on-slab/off-slab size split, and
// the GENERIC_ALLOCATORS table).
//
// Rust's SlabAllocator<T> is generic so the type-erased SlabAllocator<()>
// intrusive registry list can hold caches of different object types
// behind one pointer type. Go's Cache has no type parameter — every
// cache operates on raw byte slots, so the registry is a plain
// []*Cache; there is no type-erasure problem to route around.
// Similarly, Slab/bufctl metadata here live in ordinary Go-heap memory
// (like the teacher's own heapSegment list in heap.go) rather than
// inside the slab's backing bytes: only the object *payload* callers
// receive comes from buddy-backed, page-mapped memory. The on-slab vs.
// off-slab objects-per-slab formula is still computed the original way
// so slab capacity matches spec fidelity even though the header no
// longer physically lives where the formula reserves room for it.
package slab

import (
	"fmt"
	"unsafe"

	"waros/internal/addr"
	"waros/internal/archsup"
	"waros/internal/buddy"
	"waros/internal/bump"
)

// MaxObjectSize is the on-slab/off-slab threshold: objects strictly
// smaller than this keep their slab header on-slab; at or above it the
// header is tracked off-slab. Equals FRAME_SIZE per spec §7's named
// constant.
const MaxObjectSize = addr.FrameSize

// offSlabMaxOrder bounds how large an off-slab object's backing block
// may grow, mirroring slab.rs's MAX_ORDER=13 intent scaled to this
// port's buddy.MaxOrder ceiling (no block can exceed what buddy can
// ever hand out).
const offSlabMaxOrder = buddy.MaxOrder - 1

type bufctl uint32

const (
	bufctlAllocated bufctl = 0xFFFFFFFE
	bufctlEnd       bufctl = 0xFFFFFFFF
)

// slabHeaderOverhead models the byte cost original_source reserves
// inside an on-slab block for the Slab<T> header itself, before the
// bufctl array and object area. Our Slab header lives in ordinary Go
// memory, but the reservation is kept so on-slab object counts match
// the spec's capacity math.
const slabHeaderOverhead = 24

// PageMapper is the subset of internal/page's table interface grow()
// needs: mapping a buddy-backed physical frame into the kernel window.
// Declared locally (accept-interfaces style) so slab does not import a
// concrete page-table package.
type PageMapper interface {
	MapMemory(frame *buddy.PageFrame, size uintptr) addr.Virt
}

// Slab owns one physically contiguous block carved into objectsPerSlab
// equal-size slots, tracked by an intrusive bufctl free chain.
type Slab struct {
	base      addr.Virt
	bufctl    []bufctl
	head      bufctl
	frame     *buddy.PageFrame
	prev, next *Slab
}

func (s *Slab) contains(objectSize uintptr, objectsPerSlab int, p addr.Virt) bool {
	end := s.base.Add(objectSize * uintptr(objectsPerSlab))
	return p >= s.base && p < end
}

func (s *Slab) allocate(objectSize uintptr) (addr.Virt, bool) {
	if s.head == bufctlEnd {
		return 0, false
	}
	index := s.head
	s.head = s.bufctl[index]
	s.bufctl[index] = bufctlAllocated
	return s.base.Add(objectSize * uintptr(index)), true
}

// free returns the object at p to the chain and reports the resulting
// free-slot count, matching original_source's Slab::free return value
// (used by the caller to decide partial/full-list membership).
func (s *Slab) free(objectSize uintptr, p addr.Virt) int {
	index := bufctl(uintptr(p-s.base) / objectSize)
	if s.bufctl[index] != bufctlAllocated {
		panic("slab: free: object not allocated")
	}
	s.bufctl[index] = bufctlEnd

	if s.head == bufctlEnd {
		s.head = index
		return 1
	}
	prev := s.head
	count := 1
	for s.bufctl[prev] != bufctlEnd {
		prev = s.bufctl[prev]
		count++
	}
	s.bufctl[prev] = index
	return count + 1
}

// Cache manages every slab for one (size, align, constructor) tuple.
type Cache struct {
	name           string
	align          uintptr
	ctor           func(obj unsafe.Pointer)
	objectSize     uintptr
	objectsPerSlab int
	slabSize       uintptr
	slabOrder      int
	onSlab         bool
	totalObjects   int

	partial, full, free *Slab

	mapper PageMapper
}

// Name returns the cache's diagnostic name.
func (c *Cache) Name() string { return c.name }

// ObjectSize returns the cache's fixed object size.
func (c *Cache) ObjectSize() uintptr { return c.objectSize }

func initCache(c *Cache, name string, align uintptr, objectSize uintptr, ctor func(obj unsafe.Pointer), mapper PageMapper) error {
	onSlab := objectSize < MaxObjectSize
	var slabSize uintptr
	var objectsPerSlab int

	if onSlab {
		bufctlSize := unsafe.Sizeof(bufctl(0))
		slabSize = addr.FrameSize
		capacity := alignUp(slabSize-slabHeaderOverhead+1, align) - align
		objectsPerSlab = int(capacity / (bufctlSize + objectSize))
		if objectsPerSlab < 1 {
			return fmt.Errorf("slab: cache %q: object size %d leaves no room on a %d-byte slab", name, objectSize, slabSize)
		}
	} else {
		slabSize = maxUintptr(addr.FrameSize, nextPow2(alignUp(objectSize, align)))
		if slabSize > uintptr(addr.FrameSize)<<offSlabMaxOrder {
			return fmt.Errorf("slab: cache %q: object size %d exceeds the largest off-slab block", name, objectSize)
		}
		objectsPerSlab = int(slabSize / objectSize)
	}

	order, ok := buddy.OrderBySize(slabSize)
	if !ok {
		return fmt.Errorf("slab: cache %q: slab size %d has no buddy order", name, slabSize)
	}

	*c = Cache{
		name:           name,
		align:          align,
		ctor:           ctor,
		objectSize:     objectSize,
		objectsPerSlab: objectsPerSlab,
		slabSize:       slabSize,
		slabOrder:      order,
		onSlab:         onSlab,
		mapper:         mapper,
	}
	return nil
}

// grow backs one new slab with a fresh buddy block, mapped into the
// kernel window, and pushes it to the cache's free list.
func (c *Cache) grow() bool {
	frame, ok := buddy.GetManager().Allocate(c.slabOrder)
	if !ok {
		return false
	}
	dataAddr := c.mapper.MapMemory(frame, c.slabSize)
	if dataAddr.IsNull() {
		buddy.GetManager().Free(frame)
		return false
	}
	return c.growFromBacking(frame, dataAddr)
}

// growFromBump bootstraps a cache's very first slab directly from
// bump-allocated virtual memory rather than the buddy allocator+page
// mapper, matching DESIGN.md Open Question #4's cache-of-caches bootstrap
// exception: the registry's own backing cache gets its first slab this
// way since at the moment it is needed, buddy/page infrastructure may
// itself still be under construction.
func (c *Cache) growFromBump() bool {
	backing := bump.AllocateRaw(c.slabSize, addr.FrameSize)
	return c.growFromBacking(nil, backing)
}

func (c *Cache) growFromBacking(frame *buddy.PageFrame, dataAddr addr.Virt) bool {
	s := &Slab{base: dataAddr, bufctl: make([]bufctl, c.objectsPerSlab), frame: frame}
	for i := 0; i < c.objectsPerSlab-1; i++ {
		s.bufctl[i] = bufctl(i + 1)
	}
	s.bufctl[c.objectsPerSlab-1] = bufctlEnd
	s.head = 0

	c.free = pushFront(c.free, s)
	c.totalObjects += c.objectsPerSlab

	if c.ctor != nil {
		for i := 0; i < c.objectsPerSlab; i++ {
			obj := s.base.Add(c.objectSize * uintptr(i))
			c.ctor(unsafe.Pointer(uintptr(obj)))
		}
	}
	return true
}

// allocateSlot returns one zeroed-by-caller object slot from the
// cache, growing a new slab if needed. Returns (0, false) if growth
// fails — the fatal "slab allocator failing to grow" condition (spec
// §7).
func (c *Cache) allocateSlot() (addr.Virt, bool) {
	if c.partial != nil {
		s := c.partial
		p, ok := s.allocate(c.objectSize)
		if ok && s.head == bufctlEnd {
			c.partial = remove(c.partial, s)
			c.full = pushFront(c.full, s)
		}
		return p, ok
	}

	if c.free == nil {
		if !c.grow() {
			return 0, false
		}
	}
	s := c.free
	p, ok := s.allocate(c.objectSize)
	if ok {
		c.free = remove(c.free, s)
		if s.head == bufctlEnd {
			c.full = pushFront(c.full, s)
		} else {
			c.partial = pushFront(c.partial, s)
		}
	}
	return p, ok
}

// freeSlot returns p to whichever slab owns it.
func (c *Cache) freeSlot(p addr.Virt) {
	for s := c.partial; s != nil; s = s.next {
		if s.contains(c.objectSize, c.objectsPerSlab, p) {
			if s.free(c.objectSize, p) == c.objectsPerSlab {
				c.partial = remove(c.partial, s)
				c.free = pushFront(c.free, s)
			}
			return
		}
	}
	for s := c.full; s != nil; s = s.next {
		if s.contains(c.objectSize, c.objectsPerSlab, p) {
			s.free(c.objectSize, p)
			c.full = remove(c.full, s)
			c.partial = pushFront(c.partial, s)
			return
		}
	}
	panic("slab: freeSlot: pointer not owned by this cache")
}

// genericClass pairs a generic cache's fixed size with its diagnostic
// name, matching original_source's GENERIC_ALLOCATORS table.
type genericClass struct {
	size uintptr
	name string
}

var genericClasses = [17]genericClass{
	{8, "Generic-8"}, {16, "Generic-16"}, {32, "Generic-32"}, {64, "Generic-64"},
	{96, "Generic-96"}, {128, "Generic-128"}, {192, "Generic-192"}, {256, "Generic-256"},
	{512, "Generic-512"}, {1024, "Generic-1024"}, {2048, "Generic-2048"}, {4096, "Generic-4096"},
	{8192, "Generic-8192"}, {16384, "Generic-16384"}, {32768, "Generic-32768"},
	{65536, "Generic-65536"}, {131072, "Generic-131072"},
}

// headerSize is the width of the small pointer-recovery header stored
// immediately before every generic-allocate() return value (DESIGN.md
// Open Question #3: the generic allocator returns an alignment-adjusted
// pointer, so free() must recover the true slot base some other way
// than address arithmetic alone; we store it adjacent, as the original
// author's own kmalloc/kfree pattern in heap.go does).
const headerSize = unsafe.Sizeof(addr.Virt(0))

// Manager is the process-wide cache registry plus the generic
// size-class bank, grounded on original_source's SlabManager.
type Manager struct {
	registry []*Cache
	generic  [17]*Cache
	mapper   PageMapper
}

var global *Manager

// Init seeds the 17 generic size classes and registers them, using the
// bump allocator for the registry's own bookkeeping where the spec's
// cache-of-caches bootstrap calls for it. Cache metadata structs
// themselves are ordinary Go values (see package doc); only their
// backing slab bytes go through bump/buddy.
func Init(mapper PageMapper) *Manager {
	m := &Manager{mapper: mapper}
	for i, gc := range genericClasses {
		c := &Cache{}
		if err := initCache(c, gc.name, 1, gc.size, nil, mapper); err != nil {
			panic(fmt.Sprintf("slab: Init: %v", err))
		}
		m.generic[i] = c
		m.registry = append(m.registry, c)
	}
	global = m
	return m
}

// GetManager returns the process-wide slab manager. Panics if Init has
// not run yet.
func GetManager() *Manager {
	if global == nil {
		panic("slab: GetManager called before Init")
	}
	return global
}

// NewCache creates and registers a named typed cache. bootstrapFromBump
// forces the cache's very first slab to come from the bump allocator
// instead of buddy+page-table — set this only for the cache(s) needed
// before buddy/page infrastructure can be trusted (DESIGN.md Open
// Question #4's cache-of-caches exception); ordinary callers pass false.
func (m *Manager) NewCache(name string, objectSize, align uintptr, ctor func(obj unsafe.Pointer), bootstrapFromBump bool) (*Cache, error) {
	c := &Cache{}
	if err := initCache(c, name, align, objectSize, ctor, m.mapper); err != nil {
		return nil, err
	}
	if bootstrapFromBump {
		if !c.growFromBump() {
			return nil, fmt.Errorf("slab: NewCache %q: bump bootstrap failed", name)
		}
	}
	m.registry = append(m.registry, c)
	return c, nil
}

// Caches returns the registered caches in registration order, for
// diagnostics (SPEC_FULL Supplemented Feature: named cache registry
// walk).
func (m *Manager) Caches() []*Cache {
	out := make([]*Cache, len(m.registry))
	copy(out, m.registry)
	return out
}

// Allocate serves the generic byte-oriented interface: the smallest
// generic class whose object size can hold a headerSize-prefixed,
// align-adjusted region of size bytes is tried first; if its slab
// cannot grow, the next larger class is tried (spec §4.3's
// retry-next-size-class-on-misaligned-tail behavior). Returns (0,
// false) — a TransientAllocationMiss — only once every class has been
// tried and rejected.
func (m *Manager) Allocate(size, align uintptr) (addr.Virt, bool) {
	if align == 0 {
		align = 1
	}
	need := headerSize + size + (align - 1)

	for _, c := range m.generic {
		if c.objectSize < need {
			continue
		}
		slot, ok := c.allocateSlot()
		if !ok {
			continue
		}
		dataAddr := alignUpAddr(slot.Add(headerSize), align)
		*archsup.CastToPointer[addr.Virt](uintptr(dataAddr) - headerSize) = slot
		return dataAddr, true
	}
	return 0, false
}

// Free releases a pointer returned by Allocate.
func (m *Manager) Free(p addr.Virt) {
	slot := *archsup.CastToPointer[addr.Virt](uintptr(p) - headerSize)
	for _, c := range m.generic {
		if c.owns(slot) {
			c.freeSlot(slot)
			return
		}
	}
	panic("slab: Free: pointer not owned by any generic cache")
}

// owns reports whether p addresses a slot in one of c's partial or
// full slabs.
func (c *Cache) owns(p addr.Virt) bool {
	for s := c.partial; s != nil; s = s.next {
		if s.contains(c.objectSize, c.objectsPerSlab, p) {
			return true
		}
	}
	for s := c.full; s != nil; s = s.next {
		if s.contains(c.objectSize, c.objectsPerSlab, p) {
			return true
		}
	}
	return false
}

func pushFront(head *Slab, s *Slab) *Slab {
	s.prev = nil
	s.next = head
	if head != nil {
		head.prev = s
	}
	return s
}

func remove(head *Slab, s *Slab) *Slab {
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	}
	s.prev, s.next = nil, nil
	return head
}

func alignUp(v, align uintptr) uintptr {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func alignUpAddr(v addr.Virt, align uintptr) addr.Virt {
	return addr.Virt(alignUp(uintptr(v), align))
}

func nextPow2(v uintptr) uintptr {
	if v == 0 {
		return 1
	}
	p := uintptr(1)
	for p < v {
		p <<= 1
	}
	return p
}

func maxUintptr(a, b uintptr) uintptr {
	if a > b {
		return a
	}
	return b
}
