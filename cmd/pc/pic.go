// Command pc is the x86 32-bit protected-mode kernel entry point: it
// owns the board-specific port-IO wiring (8259 PIC, serial UART) and
// assembles the architecture-neutral core packages into a running
// kernel.
package main

import "waros/internal/irq"

// 8259 PIC ports and initialization words, grounded on
// original_source/Kernel/arch/x86_common/interrupt/pic.rs.
const (
	portMasterCommand = 0x20
	portMasterData    = 0x21
	portSlaveCommand  = 0xA0
	portSlaveData     = 0xA1

	icw1 = 0x11

	masterICW2 = 0x20 // remap IRQ0-7 to vectors 0x20-0x27
	masterICW3 = 0x04
	masterICW4 = 0x01

	slaveICW2 = 0x28 // remap IRQ8-15 to vectors 0x28-0x2F
	slaveICW3 = 0x02
	slaveICW4 = 0x01

	eoiCommand = 0x60

	spuriousMaster = 7
	spuriousSlave  = 15
)

// outb and inb are implemented in assembly, linked the same way the
// teacher's archsup package links its context-switch primitives.
//
//go:noescape
func outb(port uint16, val uint8)

//go:noescape
func inb(port uint16) uint8

// picController implements irq.Controller over the master/slave 8259
// pair, generalized from pic.rs's IRQ enum methods (enable/disable/eoi,
// each branching on is_master) into line-number-indexed operations the
// arch-neutral internal/irq package can drive without knowing about
// PIC ports.
type picController struct {
	// pending and line hold the line most recently noted by the
	// exception stub and not yet acknowledged, since the 8259 (unlike
	// the GIC) has no register that echoes the line number back.
	pending bool
	line    uint32
}

// initPIC remaps both PICs past the CPU's reserved exception vectors
// (0x00-0x1F) and masks every line, matching pic.rs's pre_init+init
// sequence.
func initPIC() *picController {
	outb(portMasterData, 0xFF)
	outb(portSlaveData, 0xFF)

	outb(portMasterCommand, icw1)
	outb(portMasterData, masterICW2)
	outb(portMasterData, masterICW3)
	outb(portMasterData, masterICW4)

	outb(portSlaveCommand, icw1)
	outb(portSlaveData, slaveICW2)
	outb(portSlaveData, slaveICW3)
	outb(portSlaveData, slaveICW4)

	outb(portMasterData, 0xFF)
	outb(portSlaveData, 0xFF)

	return &picController{}
}

func isMaster(line uint32) bool { return line < 8 }

func (*picController) Enable(line uint32) {
	if line >= 16 {
		return
	}
	if isMaster(line) {
		port := uint16(portMasterData)
		outb(port, inb(port)&^(1<<line))
	} else {
		port := uint16(portSlaveData)
		outb(port, inb(port)&^(1<<(line-8)))
		outb(portMasterData, inb(portMasterData)&^(1<<2)) // unmask cascade
	}
}

func (*picController) Disable(line uint32) {
	if line >= 16 {
		return
	}
	if isMaster(line) {
		port := uint16(portMasterData)
		outb(port, inb(port)|(1<<line))
	} else {
		port := uint16(portSlaveData)
		outb(port, inb(port)|(1<<(line-8)))
	}
}

// Acknowledge has no hardware "read pending line" register on the
// 8259; the CPU's own interrupt vector tells the handler which line
// fired, so the exception stub passes it straight through here before
// Dispatch ever runs. It reports not-ok only when no line has been
// noted since the last Acknowledge, so Dispatch skips the EOI; the
// spurious IRQ7/IRQ15 cases from pic.rs are not told apart from real
// interrupts on those lines.
func (c *picController) Acknowledge() (uint32, bool) {
	if !c.pending {
		return 0, false
	}
	c.pending = false
	return c.line, true
}

// noteVector is called by the assembly exception stub with the IRQ
// line number decoded from the interrupt vector, before Dispatch runs.
func (c *picController) noteVector(line uint32) {
	c.pending = true
	c.line = line
}

func (*picController) EndOfInterrupt(line uint32) {
	if isMaster(line) {
		outb(portMasterCommand, eoiCommand|uint8(line))
	} else {
		outb(portSlaveCommand, eoiCommand|uint8(line-8))
		outb(portMasterCommand, eoiCommand|2)
	}
}

var _ irq.Controller = (*picController)(nil)
