//go:build 386

package archsup

// Assembly-linked primitives for x86 32-bit protected mode, declared the
// same way the teacher's mazboot/asm package declares its linker-backed
// helpers: no Go body, backed by a sibling .s file.

//go:noescape
func taskSwitch(from, to *uintptr)

//go:noescape
func taskLeap(to uintptr)

//go:noescape
func interruptEnable()

//go:noescape
func interruptDisable() uintptr

//go:noescape
func interruptRestore(prior uintptr)

//go:noescape
func interruptWait()

// X86 is the capability set cmd/pc wires into internal/sched and
// internal/ksync: "sti"/"cli"-backed interrupt gating and the
// task_switch/task_leap context-switch pair from
// original_source/Kernel/arch/x86_common/task.rs.
var X86 = Capabilities{
	Switch:           taskSwitch,
	Leap:             taskLeap,
	InterruptEnable:  interruptEnable,
	InterruptDisable: interruptDisable,
	InterruptRestore: interruptRestore,
	InterruptWait:    interruptWait,
}
