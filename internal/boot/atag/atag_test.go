package atag

import (
	"testing"
	"unsafe"
)

// buildList packs words (header/body data, little-endian on this host
// just like the target) into a []uint32 the tests can hand Parse the
// address of directly.
func buildList(words ...uint32) uintptr {
	return uintptr(unsafe.Pointer(&words[0]))
}

func TestParseDecodesCoreMemAndCmdline(t *testing.T) {
	// CORE: size=5 (header+3 words), flags, pagesize, rootdev
	// MEM: size=4, memsize, memstart
	// CMDLINE: size=2 words header + ceil(len("abc\0")/4)=1 word -> size 3
	// packed as uint32 words; "abc\0" little-endian fits one word.
	cmd := []byte("abc\x00")
	var cmdWord uint32
	for i, b := range cmd {
		cmdWord |= uint32(b) << (8 * uint(i))
	}

	words := []uint32{
		5, uint32(TagCore), 0x1, 4096, 0xFF,
		4, uint32(TagMem), 128 * 1024 * 1024, 0x00000000,
		3, uint32(TagCmdline), cmdWord,
		0, uint32(TagNone),
	}

	info := Parse(buildList(words...))

	if !info.HasCore || info.CoreFlags != 0x1 || info.PageSize != 4096 || info.RootDev != 0xFF {
		t.Fatalf("unexpected core tag decode: %+v", info)
	}
	if !info.HasMem || info.MemSize != 128*1024*1024 || info.MemStart != 0 {
		t.Fatalf("unexpected mem tag decode: %+v", info)
	}
	if !info.HasCmdLine || info.CmdLine != "abc" {
		t.Fatalf("expected cmdline %q, got %q", "abc", info.CmdLine)
	}
}

func TestParseStopsAtNone(t *testing.T) {
	words := []uint32{0, uint32(TagNone)}
	info := Parse(buildList(words...))
	if info.HasMem || info.HasCore || info.HasCmdLine {
		t.Fatalf("expected an empty Info from a bare NONE tag, got %+v", info)
	}
}

func TestParseSkipsUnrecognizedTags(t *testing.T) {
	words := []uint32{
		6, 0x12345678, 0, 0, 0, 0, // an unrecognized tag with a 4-word body
		4, uint32(TagMem), 64 * 1024 * 1024, 0,
		0, uint32(TagNone),
	}
	info := Parse(buildList(words...))
	if !info.HasMem || info.MemSize != 64*1024*1024 {
		t.Fatalf("expected the walk to skip the unrecognized tag and still decode MEM, got %+v", info)
	}
}
