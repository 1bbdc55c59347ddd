package arm

import (
	"testing"

	"waros/internal/addr"
	"waros/internal/bump"
	"waros/internal/page"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	addr.SetWindowEnd(addr.KernelBase + 16*1024*1024)
	return &Table{
		fld: make([]uint32, fldEntries),
		sld: make([]uint32, sldEntries),
	}
}

func TestEncodeSmallPage(t *testing.T) {
	cacheable := encodeSmallPage(page.Flags{Cacheable: true, KernelOnly: true, Writable: true})
	if cacheable&(1<<3) == 0 {
		t.Fatal("expected the cache bit to be set for a cacheable mapping")
	}

	buffered := encodeSmallPage(page.Flags{Buffered: true, KernelOnly: true, Writable: true})
	if buffered&(1<<2) == 0 {
		t.Fatal("expected the buffered bit to be set for a buffered mapping")
	}

	plain := encodeSmallPage(page.Flags{KernelOnly: true, Writable: true})
	if plain&(1<<3) != 0 || plain&(1<<2) != 0 {
		t.Fatal("expected neither cache nor buffer bits for a plain mapping")
	}
}

func TestMapDirectInstallsSmallDescriptors(t *testing.T) {
	tbl := newTestTable(t)

	tbl.MapDirect(page.PhysRange{Start: addr.Phys(0x100000), End: addr.Phys(0x102000)}, page.KernelDirect)

	for _, p := range []addr.Phys{0x100000, 0x101000} {
		v := p.ToVirt()
		sld := tbl.entryAt(v)
		if sld&0b11 != sldSmallTag {
			t.Fatalf("entry for %v has type tag %#b, want small (%#b)", v, sld&0b11, sldSmallTag)
		}
		if addr.Phys(sld&smallPageMask) != p {
			t.Fatalf("entry for %v encodes base %#x, want %#x", v, sld&smallPageMask, p)
		}
	}
}

func TestNewFillsFirstLevelWithCoarseDescriptors(t *testing.T) {
	bump.Init(addr.Virt(0x10000))
	addr.SetWindowEnd(addr.KernelBase + 16*1024*1024)
	tbl := New()

	for i, e := range tbl.fld {
		if e&0b11111 != fldCoarseTag {
			t.Fatalf("fld[%d] = %#x, want a coarse-table descriptor tag %#x", i, e, fldCoarseTag)
		}
	}
}

func TestNewSecondLevelStartsAsFault(t *testing.T) {
	bump.Init(addr.Virt(0x10000))
	addr.SetWindowEnd(addr.KernelBase + 16*1024*1024)
	tbl := New()

	for i, e := range tbl.sld[:sldCoarseLen] {
		if e != sldFaultTag {
			t.Fatalf("sld[%d] = %#x, want fault (%#x) before any MapDirect call", i, e, sldFaultTag)
		}
	}
}
