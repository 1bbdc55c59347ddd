package multiboot

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

func TestHasReflectsFlagBits(t *testing.T) {
	info := &Info{Flags: 1<<FlagMemSize | 1<<FlagCmdLine}

	if !info.Has(FlagMemSize) || !info.Has(FlagCmdLine) {
		t.Fatal("expected the set bits to report true")
	}
	if info.Has(FlagMemoryMap) {
		t.Fatal("expected an unset bit to report false")
	}
}

func TestMemSizeSumsLowerAndUpperPlusTheGap(t *testing.T) {
	info := &Info{Flags: 1 << FlagMemSize, MemLower: 639, MemUpper: 130048}

	size, ok := info.MemSize()
	if !ok {
		t.Fatal("expected MemSize to report present")
	}
	want := (639 + 130048 + 1024) * 1024
	if size != uint32(want) {
		t.Fatalf("expected %d, got %d", want, size)
	}
}

func TestMemSizeAbsentWithoutTheFlag(t *testing.T) {
	info := &Info{}
	if _, ok := info.MemSize(); ok {
		t.Fatal("expected MemSize to report absent without flag 0 set")
	}
}

func TestCmdLineReadsTheNulTerminatedString(t *testing.T) {
	backing := append([]byte("console=ttyS0"), 0)
	info := &Info{Flags: 1 << FlagCmdLine, Cmdline: uint32(uintptr(unsafe.Pointer(&backing[0])))}

	s, ok := info.CmdLine()
	if !ok || s != "console=ttyS0" {
		t.Fatalf("expected \"console=ttyS0\", got %q ok=%v", s, ok)
	}
}

func putEntry(buf []byte, size uint32, base, length uint64, typ MemoryType) {
	binary.LittleEndian.PutUint32(buf[0:4], size)
	binary.LittleEndian.PutUint64(buf[4:12], base)
	binary.LittleEndian.PutUint64(buf[12:20], length)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(typ))
}

func TestMemoryMapWalksTheFixedStrideArray(t *testing.T) {
	raw := make([]byte, 2*mmapEntryBytes)
	putEntry(raw[0:24], 20, 0, 0x9FC00, MemoryUsable)
	putEntry(raw[24:48], 20, 0x100000, 0x7EF0000, MemoryUsable)

	info := &Info{
		Flags:      1 << FlagMemoryMap,
		MmapAddr:   uint32(uintptr(unsafe.Pointer(&raw[0]))),
		MmapLength: uint32(len(raw)),
	}

	got, ok := info.MemoryMap()
	if !ok {
		t.Fatal("expected MemoryMap to report present")
	}
	if len(got) != 2 || got[1].BaseAddr != 0x100000 {
		t.Fatalf("expected 2 entries with the second at 0x100000, got %+v", got)
	}
}

func TestMemoryTypeString(t *testing.T) {
	if MemoryAcpiNvs.String() != "ACPI NVS memory" {
		t.Fatalf("unexpected description: %q", MemoryAcpiNvs.String())
	}
}
