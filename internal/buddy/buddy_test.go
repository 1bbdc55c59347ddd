package buddy

import (
	"runtime"
	"testing"
	"unsafe"

	"waros/internal/addr"
	"waros/internal/bump"
)

func newTestManager(t *testing.T, ranges []Range, totalSize uintptr) *Manager {
	t.Helper()
	// The frame array is written through the bump allocator's raw
	// addresses, so on the host it is backed by a Go buffer (one spare
	// entry covers alignment).
	backing := make([]byte, (totalSize/addr.FrameSize+1)*unsafe.Sizeof(PageFrame{}))
	t.Cleanup(func() { runtime.KeepAlive(backing) })
	bump.Init(addr.Virt(uintptr(unsafe.Pointer(&backing[0]))))
	return Init(totalSize, addr.Phys(0x100000), ranges)
}

func TestInitCreatesOneTopOrderBlock(t *testing.T) {
	// S1: [0x100000..0x500000) = 4 MiB = 1024 frames -> one order-10 block.
	m := newTestManager(t, []Range{{addr.Phys(0x100000), addr.Phys(0x500000)}}, 0x400000)

	if m.freeHead[10] == noLink {
		t.Fatal("expected one order-10 block on the order-10 free list")
	}
	for o := 0; o < 10; o++ {
		if m.freeHead[o] != noLink {
			t.Fatalf("expected order-%d list empty, found a block", o)
		}
	}
}

func TestAllocateSplitsTopDownLeavingOneOfEachLowerOrder(t *testing.T) {
	m := newTestManager(t, []Range{{addr.Phys(0x100000), addr.Phys(0x500000)}}, 0x400000)

	f, ok := m.Allocate(0)
	if !ok {
		t.Fatal("Allocate(0) failed")
	}
	if f.Addr() != addr.Phys(0x100000) {
		t.Fatalf("Allocate(0) base = %v, want 0x100000", f.Addr())
	}

	for o := 0; o <= 9; o++ {
		if m.freeHead[o] == noLink {
			t.Fatalf("expected order-%d list to hold exactly one split-off buddy", o)
		}
	}
	if m.freeHead[10] != noLink {
		t.Fatal("expected order-10 list empty after full split")
	}
}

func TestFreeMergesBackToSingleBlock(t *testing.T) {
	m := newTestManager(t, []Range{{addr.Phys(0x100000), addr.Phys(0x500000)}}, 0x400000)

	f, _ := m.Allocate(0)
	m.Free(f)

	if m.freeHead[10] == noLink {
		t.Fatal("expected the full order-10 block restored after freeing")
	}
	for o := 0; o < 10; o++ {
		if m.freeHead[o] != noLink {
			t.Fatalf("expected order-%d list empty after full merge, found a block", o)
		}
	}
}

func TestGapPreventsMerge(t *testing.T) {
	// Two order-0 ranges separated by a gap: frees must not cross it.
	m := newTestManager(t, []Range{
		{addr.Phys(0x100000), addr.Phys(0x101000)},
		{addr.Phys(0x200000), addr.Phys(0x201000)},
	}, 0x2000)

	a, ok := m.Allocate(0)
	if !ok {
		t.Fatal("Allocate(0) #1 failed")
	}
	b, ok := m.Allocate(0)
	if !ok {
		t.Fatal("Allocate(0) #2 failed")
	}

	m.Free(a)
	m.Free(b)

	if m.freeHead[1] != noLink {
		t.Fatal("frames across a memory-map gap must not merge into an order-1 block")
	}
}

func TestTotalAndFreeSize(t *testing.T) {
	m := newTestManager(t, []Range{{addr.Phys(0x100000), addr.Phys(0x500000)}}, 0x400000)

	if m.TotalSize() != 0x400000 {
		t.Fatalf("TotalSize = %#x, want %#x", m.TotalSize(), 0x400000)
	}
	if m.FreeSize() != m.TotalSize() {
		t.Fatalf("FreeSize = %#x, want %#x before any allocation", m.FreeSize(), m.TotalSize())
	}

	f, _ := m.Allocate(0)
	if m.FreeSize() != m.TotalSize()-addr.FrameSize {
		t.Fatalf("FreeSize after one allocation = %#x, want %#x", m.FreeSize(), m.TotalSize()-addr.FrameSize)
	}
	m.Free(f)
}

func TestOrderBySize(t *testing.T) {
	tests := []struct {
		size      uintptr
		wantOrder int
		wantOK    bool
	}{
		{1, 0, true},
		{addr.FrameSize, 0, true},
		{addr.FrameSize + 1, 1, true},
		{addr.FrameSize * 4, 2, true},
	}
	for _, tt := range tests {
		order, ok := OrderBySize(tt.size)
		if ok != tt.wantOK || order != tt.wantOrder {
			t.Errorf("OrderBySize(%d) = (%d, %v), want (%d, %v)", tt.size, order, ok, tt.wantOrder, tt.wantOK)
		}
	}
}

func TestAllocateExhaustionReturnsFalse(t *testing.T) {
	m := newTestManager(t, []Range{{addr.Phys(0x100000), addr.Phys(0x101000)}}, 0x1000)

	if _, ok := m.Allocate(0); !ok {
		t.Fatal("expected the single frame to be allocatable")
	}
	if _, ok := m.Allocate(0); ok {
		t.Fatal("expected allocation to fail once the pool is exhausted")
	}
}
