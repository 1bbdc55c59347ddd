package main

import (
	"waros/internal/addr"
	"waros/internal/archsup"
	"waros/internal/boot/multiboot"
	"waros/internal/buddy"
	"waros/internal/bump"
	"waros/internal/event"
	"waros/internal/irq"
	"waros/internal/klog"
	"waros/internal/page"
	"waros/internal/page/x86"
	"waros/internal/sched"
	"waros/internal/slab"
	"waros/internal/timer"
)

// keyboardIRQLine is the 8259's IRQ1, grounded on pic.rs's
// IRQ::Keyboard variant.
const keyboardIRQLine = 1

// keyboardDataPort is the PS/2 controller's output buffer.
const keyboardDataPort = 0x60

// deviceClassKeyboard tags a PushDevice event as PS/2 scancode input.
const deviceClassKeyboard = 1

// kernelEnd is supplied by the linker script, the first free virtual
// byte after the kernel image (matching the teacher's
// __page_tables_start convention).
var kernelEnd uintptr

var pic *picController

// pageMapper adapts a page.Table into the fixed-flags PageMapper slab
// wants; see cmd/armmach's identical adapter for the rationale.
type pageMapper struct {
	table *x86.Table
}

func (m pageMapper) MapMemory(frame *buddy.PageFrame, size uintptr) addr.Virt {
	return m.table.MapMemory(frame, size, page.KernelDirect)
}

// KernelMain is the entry point boot.s jumps to once the CPU is in
// 32-bit protected mode with paging still off and EAX/EBX holding the
// multiboot magic and info-structure pointer, matching
// original_source/Kernel/multiboot.rs's magic_valid/info contract.
//
//go:nosplit
//go:noinline
func KernelMain(mbootMagic, mbootInfoPtr uint32) {
	klog.Install(initSerial())
	klog.Puts("waros/pc: booting\r\n")

	if mbootMagic != multiboot.BootloaderMagic {
		klog.Puts("waros/pc: FATAL invalid multiboot magic\r\n")
		for {
		}
	}
	info := multiboot.At(uintptr(mbootInfoPtr))

	bump.Init(addr.Virt(kernelEnd))

	var ranges []buddy.Range
	var totalSize uint64
	if mmap, ok := info.MemoryMap(); ok {
		for _, e := range mmap {
			if e.Type != multiboot.MemoryUsable {
				continue
			}
			r := buddy.Range{
				Start: addr.Phys(e.BaseAddr),
				End:   addr.Phys(e.BaseAddr + e.Length),
			}
			ranges = append(ranges, r)
			totalSize += e.Length
		}
	} else if size, ok := info.MemSize(); ok {
		r := buddy.Range{Start: 0, End: addr.Phys(size)}
		ranges = []buddy.Range{r}
		totalSize = uint64(size)
	}

	buddy.Init(uintptr(totalSize), addr.Phys(kernelEnd), ranges)

	table := x86.New()
	for _, r := range ranges {
		table.MapDirect(page.PhysRange{Start: r.Start, End: r.End}, page.KernelDirect)
	}
	table.Set()
	table.Enable()

	slab.Init(pageMapper{table: table})
	timer.Init()
	sched.Init(archsup.X86)
	event.Init()

	pic = initPIC()
	initPIT()
	table32 := irq.New(pic)
	table32.SetHandler(pitIRQLine, func() {
		timer.GetManager().Tick(1000 / pitFreqHz)
	})
	table32.Enable(pitIRQLine)
	table32.SetHandler(keyboardIRQLine, func() {
		scancode := inb(keyboardDataPort)
		event.GetQueue().PushDevice(event.Device{Class: deviceClassKeyboard, Code: uint32(scancode)})
	})
	table32.Enable(keyboardIRQLine)

	klog.Puts("waros/pc: scheduler running\r\n")

	// KernelMain's own calling context became the primary task inside
	// sched.Init; it keeps running here like any other task, yielding
	// the CPU between timer ticks the same way the idle task does.
	for {
		archsup.X86.InterruptWait()
	}
}

func main() {
	KernelMain(multiboot.BootloaderMagic, 0)
	for {
	}
}
