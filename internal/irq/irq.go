// Package irq implements the architecture-neutral interrupt dispatch
// contract of spec §4.8: a fixed handler table indexed by line number,
// plumbed onto whichever controller the running architecture supplies
// (8259 PIC on x86, GICv2 distributor+CPU interface on ARM).
// Generalized from the teacher's gic_qemu.go (InterruptHandler array,
// registerInterruptHandler, gicEnableInterrupt/DisableInterrupt,
// gicAcknowledgeInterrupt/EndOfInterrupt, gicHandleInterrupt's
// acknowledge-dispatch-EOI sequence).
package irq

// MaxLines bounds the handler table. It covers x86's 8259 pair (16
// lines) and the low GICv2 interrupt IDs cmd/armmach uses; the GIC's own
// ID space runs up to 1020, and a line at or above MaxLines gets no
// handler (SetHandler ignores it, Dispatch only sends its EOI). The
// table itself is a fixed array of function values, not raw memory.
const MaxLines = 256

// Handler is invoked with interrupts held disabled for its duration;
// spec §4.8 forbids nested interrupts inside core handlers, so a
// handler must not attempt to re-enable them.
type Handler func()

// Controller is the architecture-specific half of the contract: the
// core never touches PIC or GIC registers directly, only through this
// interface (accept-interfaces style, matching internal/slab's
// PageMapper and internal/timer's EventQueue). cmd/pc and cmd/armmach
// each supply the concrete implementation.
type Controller interface {
	// Enable/Disable gate delivery of one line at the controller.
	Enable(line uint32)
	Disable(line uint32)

	// Acknowledge reads the pending interrupt's line number from the
	// controller, reporting ok=false for a spurious interrupt (the
	// GIC's 1023 sentinel, or no line pending at the PIC).
	Acknowledge() (line uint32, ok bool)

	// EndOfInterrupt signals completion of line's handling.
	EndOfInterrupt(line uint32)
}

// Table is the fixed handler table the core installs into: one
// periodic-tick handler and one handler per input device (spec §4.8).
type Table struct {
	ctl      Controller
	handlers [MaxLines]Handler
}

// New binds a handler table to ctl. The table owns no hardware state
// itself; every register access goes through ctl.
func New(ctl Controller) *Table {
	return &Table{ctl: ctl}
}

// SetHandler installs h as the handler for line, replacing whatever
// was previously registered (including nothing).
func (t *Table) SetHandler(line uint32, h Handler) {
	if line >= MaxLines {
		return
	}
	t.handlers[line] = h
}

// Enable allows line to reach Dispatch.
func (t *Table) Enable(line uint32) { t.ctl.Enable(line) }

// Disable stops line from reaching Dispatch.
func (t *Table) Disable(line uint32) { t.ctl.Disable(line) }

// Dispatch is the architecture's single entry point from its raw
// exception vector: acknowledge the pending line, invoke its handler
// if one is registered, then signal end-of-interrupt. A spurious
// acknowledge is a silent no-op; an unregistered line runs no handler
// but still completes its EOI so the controller isn't left waiting.
func (t *Table) Dispatch() {
	line, ok := t.ctl.Acknowledge()
	if !ok {
		return
	}
	if line < MaxLines {
		if h := t.handlers[line]; h != nil {
			h()
		}
	}
	t.ctl.EndOfInterrupt(line)
}
