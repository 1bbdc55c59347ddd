package x86

import (
	"testing"

	"waros/internal/addr"
	"waros/internal/page"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	addr.SetWindowEnd(addr.KernelBase + 16*1024*1024)
	return &Table{
		pd: make([]uint32, pdEntries),
		pt: make([]uint32, ptEntries),
	}
}

func TestEncodeFlags(t *testing.T) {
	tests := []struct {
		name string
		in   page.Flags
		want uint32
	}{
		{"kernel rw cacheable", page.Flags{KernelOnly: true, Writable: true, Cacheable: true}, flagPresent | flagRW},
		{"user read-only", page.Flags{Writable: false, Cacheable: true}, flagPresent | flagUser},
		{"buffered non-cacheable", page.Flags{Buffered: true, KernelOnly: true}, flagPresent | flagWriteThrough | flagCacheDisable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeFlags(tt.in); got != tt.want {
				t.Errorf("encodeFlags(%+v) = %#x, want %#x", tt.in, got, tt.want)
			}
		})
	}
}

func TestMapDirectInstallsEntriesAtLinearOffset(t *testing.T) {
	tbl := newTestTable(t)

	tbl.MapDirect(page.PhysRange{Start: addr.Phys(0x100000), End: addr.Phys(0x102000)}, page.KernelDirect)

	for _, p := range []addr.Phys{0x100000, 0x101000} {
		v := p.ToVirt()
		pde, pte := tbl.entryAt(v)
		if pde&flagPresent == 0 {
			t.Fatalf("expected PDE for %v to be present", v)
		}
		if pte&flagPresent == 0 {
			t.Fatalf("expected PTE for %v to be present", v)
		}
		if addr.Phys(pte&^0xFFF) != p {
			t.Fatalf("PTE for %v encodes base %#x, want %#x", v, pte&^0xFFF, p)
		}
	}
}

func TestMapDirectRespectsWritableFlag(t *testing.T) {
	tbl := newTestTable(t)
	ro := page.Flags{Cacheable: true, KernelOnly: true, Writable: false}

	tbl.MapDirect(page.PhysRange{Start: addr.Phys(0x200000), End: addr.Phys(0x201000)}, ro)

	_, pte := tbl.entryAt(addr.Phys(0x200000).ToVirt())
	if pte&flagRW != 0 {
		t.Fatal("expected the read-only mapping to not carry the RW bit")
	}
}
