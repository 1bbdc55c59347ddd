package main

import (
	"waros/internal/addr"
	"waros/internal/archsup"
	"waros/internal/boot/atag"
	"waros/internal/buddy"
	"waros/internal/bump"
	"waros/internal/event"
	"waros/internal/irq"
	"waros/internal/klog"
	"waros/internal/page"
	"waros/internal/page/arm"
	"waros/internal/sched"
	"waros/internal/slab"
	"waros/internal/timer"
)

// kernelEnd is supplied by the linker script the same way the
// teacher's __page_tables_start/__page_tables_end symbols are, marking
// the first free byte after the kernel image.
var kernelEnd uintptr

// timerTickLine is the GIC PPI ID for the ARM generic virtual timer,
// grounded on the teacher's IRQ_ID_TIMER_PPI constant.
const timerTickLine = 27

// uartRxLine is the GIC SPI for QEMU virt's PL011 UART0.
const uartRxLine = 33

// deviceClassUART tags a PushDevice event as UART RX input.
const deviceClassUART = 1

// pageMapper adapts a page.Table into the fixed-flags PageMapper slab
// wants, since slab's accept-interfaces PageMapper has no Flags
// parameter but page.Table's MapMemory does.
type pageMapper struct {
	table page.Table
}

func (m pageMapper) MapMemory(frame *buddy.PageFrame, size uintptr) addr.Virt {
	return m.table.MapMemory(frame, size, page.KernelDirect)
}

// KernelMain is the entry point called from boot.s once the CPU is in
// SVC mode with a stack set up. Grounded on the teacher's KernelMain's
// "UART first, then memory, then the rest" ordering.
//
//go:nosplit
//go:noinline
func KernelMain(r0, r1, atagsPtr uint32) {
	_ = r0
	_ = r1

	klog.Install(initUART())
	klog.Puts("waros/armmach: booting\r\n")

	info := atag.Parse(uintptr(atagsPtr))
	var ranges []buddy.Range
	if info.HasMem {
		ranges = []buddy.Range{{
			Start: addr.Phys(info.MemStart),
			End:   addr.Phys(info.MemStart + info.MemSize),
		}}
	}

	bump.Init(addr.Virt(kernelEnd))

	totalSize := uint64(0)
	for _, r := range ranges {
		totalSize += uint64(r.End - r.Start)
	}
	buddy.Init(uintptr(totalSize), addr.Phys(kernelEnd), ranges)

	table := arm.New()
	for _, r := range ranges {
		table.MapDirect(page.PhysRange{Start: r.Start, End: r.End}, page.KernelDirect)
	}
	table.Set()
	table.Enable()

	slab.Init(pageMapper{table: table})
	timer.Init()
	sched.Init(archsup.ARM)
	event.Init()

	ctl := initGIC()
	table32 := irq.New(ctl)
	table32.SetHandler(timerTickLine, func() {
		timer.GetManager().Tick(1)
	})
	table32.Enable(timerTickLine)
	table32.SetHandler(uartRxLine, func() {
		event.GetQueue().PushDevice(event.Device{Class: deviceClassUART, Code: uint32(uartReadByte())})
	})
	table32.Enable(uartRxLine)

	klog.Puts("waros/armmach: scheduler running\r\n")

	// KernelMain's own calling context became the primary task inside
	// sched.Init; it keeps running here like any other task, yielding
	// the CPU between timer ticks the same way idleEntry does.
	for {
		archsup.ARM.InterruptWait()
	}
}

func main() {
	KernelMain(0, 0, 0)
	for {
	}
}
