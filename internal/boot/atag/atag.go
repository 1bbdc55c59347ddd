// Package atag decodes the ARM boot-time ATAG list. Grounded on the
// teacher's ATAG parser in src/go/mazarin/page.go (getMemSize's
// tagSize/tag header walk, the word-count-based "next tag" stride),
// generalized per SPEC_FULL's supplemented-feature #7 to recognize
// every standard tag the distillation's MEM-only walk dropped.
package atag

import "waros/internal/archsup"

// Tag identifies an ATAG record's type, using the standard ARM boot
// tag values (the same ones the Linux kernel's arch/arm/kernel/setup.c
// recognizes).
type Tag uint32

const (
	TagNone     Tag = 0x00000000
	TagCore     Tag = 0x54410001
	TagMem      Tag = 0x54410002
	TagInitrd2  Tag = 0x54420005
	TagSerial   Tag = 0x54410006
	TagRevision Tag = 0x54410007
	TagCmdline  Tag = 0x54410009
)

// Info is the set of fields a driver boundary might need, decoded from
// whichever tags were actually present in the list.
type Info struct {
	HasCore      bool
	CoreFlags    uint32
	PageSize     uint32
	RootDev      uint32

	HasMem   bool
	MemSize  uint32
	MemStart uint32

	HasCmdLine bool
	CmdLine    string

	HasInitrd   bool
	InitrdStart uint32
	InitrdSize  uint32

	HasSerial bool
	SerialLow uint32
	SerialHi  uint32

	HasRevision bool
	Revision    uint32
}

// Parse walks the ATAG list starting at ptr until TagNone or a
// zero-size record, decoding every tag it recognizes. Unrecognized
// tags are skipped using their own size word, so a list containing
// tags this package doesn't know about still walks correctly.
func Parse(ptr uintptr) Info {
	var info Info

	for {
		size := *archsup.CastToPointer[uint32](ptr)
		tag := Tag(*archsup.CastToPointer[uint32](ptr + 4))
		if tag == TagNone || size == 0 {
			break
		}
		body := ptr + 8

		switch tag {
		case TagCore:
			info.HasCore = true
			if size > 2 {
				info.CoreFlags = *archsup.CastToPointer[uint32](body)
			}
			if size > 3 {
				info.PageSize = *archsup.CastToPointer[uint32](body + 4)
			}
			if size > 4 {
				info.RootDev = *archsup.CastToPointer[uint32](body + 8)
			}
		case TagMem:
			info.HasMem = true
			info.MemSize = *archsup.CastToPointer[uint32](body)
			info.MemStart = *archsup.CastToPointer[uint32](body + 4)
		case TagCmdline:
			info.HasCmdLine = true
			info.CmdLine = cString(body)
		case TagInitrd2:
			info.HasInitrd = true
			info.InitrdStart = *archsup.CastToPointer[uint32](body)
			info.InitrdSize = *archsup.CastToPointer[uint32](body + 4)
		case TagSerial:
			info.HasSerial = true
			info.SerialLow = *archsup.CastToPointer[uint32](body)
			info.SerialHi = *archsup.CastToPointer[uint32](body + 4)
		case TagRevision:
			info.HasRevision = true
			info.Revision = *archsup.CastToPointer[uint32](body)
		}

		// size is a word count including the two-word header.
		ptr += uintptr(size) * 4
	}

	return info
}

func cString(ptr uintptr) string {
	var b []byte
	for {
		c := *archsup.CastToPointer[byte](ptr)
		if c == 0 {
			break
		}
		b = append(b, c)
		ptr++
	}
	return string(b)
}
