// Command armmach is the ARMv6/v7 kernel entry point: it owns the
// board-specific MMIO wiring (GIC, UART) and assembles the
// architecture-neutral core packages into a running kernel.
package main

import (
	"waros/internal/irq"
)

// GIC register base addresses for QEMU's virt machine GICv2. Grounded
// on the teacher's gic_qemu.go (GIC_DIST_BASE/GIC_CPU_BASE and the
// distributor/CPU-interface register offsets).
const (
	gicDistBase = 0x08000000
	gicCPUBase  = 0x08010000

	gicdCtlr       = gicDistBase + 0x000
	gicdIgroupRn   = gicDistBase + 0x080
	gicdISEnableRn = gicDistBase + 0x100
	gicdICEnableRn = gicDistBase + 0x180
	gicdICPendRn   = gicDistBase + 0x280
	gicdIPriorityRn = gicDistBase + 0x400
	gicdITargetsRn  = gicDistBase + 0x800
	gicdICfgRn      = gicDistBase + 0xC00

	gicCtlr = gicCPUBase + 0x000
	gicPMR  = gicCPUBase + 0x004
	gicBPR  = gicCPUBase + 0x008
	gicIAR  = gicCPUBase + 0x00C
	gicEOIR = gicCPUBase + 0x010

	spuriousID = 1023
	maxLines   = 1020
)

// mmioWrite and mmioRead are implemented in assembly, linked the same
// way the teacher's mazboot/asm package links its MMIO helpers.
//
//go:noescape
func mmioWrite(reg uintptr, val uint32)

//go:noescape
func mmioRead(reg uintptr) uint32

// gicController implements irq.Controller over a GICv2 distributor +
// CPU interface, generalized from the teacher's gicEnableInterrupt/
// DisableInterrupt/gicAcknowledgeInterrupt/gicEndOfInterrupt free
// functions into a value the arch-neutral internal/irq package can
// accept without knowing about GIC registers.
type gicController struct{}

// initGIC performs the distributor/CPU-interface bring-up sequence the
// teacher's gicInit runs: disable both, clear pending, route every
// interrupt to Group 1 non-secure so it delivers as an IRQ rather than
// an FIQ, set default priority and CPU target, configure level-trigger
// mode, then re-enable both.
func initGIC() *gicController {
	mmioWrite(gicdCtlr, 0)
	mmioWrite(gicCtlr, 0)
	mmioWrite(gicPMR, 0xFF)
	mmioWrite(gicBPR, 0)

	for i := 0; i < 32; i++ {
		mmioWrite(gicdICPendRn+uintptr(i*4), 0xFFFFFFFF)
		mmioWrite(gicdIgroupRn+uintptr(i*4), 0xFFFFFFFF)
	}
	for i := 0; i < 256; i++ {
		mmioWrite(gicdIPriorityRn+uintptr(i*4), 0x80808080)
		mmioWrite(gicdITargetsRn+uintptr(i*4), 0x01010101)
	}
	for i := 0; i < 64; i++ {
		mmioWrite(gicdICfgRn+uintptr(i*4), 0)
	}

	mmioWrite(gicdCtlr, 0x03)
	mmioWrite(gicCtlr, 0x03)

	return &gicController{}
}

func (*gicController) Enable(line uint32) {
	if line >= maxLines {
		return
	}
	reg, bit := line/32, line%32
	mmioWrite(gicdISEnableRn+uintptr(reg*4), 1<<bit)
}

func (*gicController) Disable(line uint32) {
	if line >= maxLines {
		return
	}
	reg, bit := line/32, line%32
	mmioWrite(gicdICEnableRn+uintptr(reg*4), 1<<bit)
}

func (*gicController) Acknowledge() (uint32, bool) {
	id := mmioRead(gicIAR) & 0x3FF
	if id >= spuriousID {
		return 0, false
	}
	return id, true
}

func (*gicController) EndOfInterrupt(line uint32) {
	mmioWrite(gicEOIR, line)
}

var _ irq.Controller = (*gicController)(nil)
