//go:build arm

package archsup

// Assembly-linked primitives for ARMv6/v7, declared the same way the
// teacher's mazboot/asm package declares its linker-backed helpers: no
// Go body, backed by a sibling .s file.

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

// ARM is the capability set cmd/armmach wires into internal/sched and
// internal/ksync: CPSR-I-bit interrupt gating and the context-switch
// pair from original_source/Kernel/arch/arm/task.rs's equivalent of the
// x86_common task_switch/task_leap contract.
var ARM = Capabilities{
	Switch:           taskSwitch,
	Leap:             taskLeap,
	InterruptEnable:  interruptEnable,
	InterruptDisable: interruptDisable,
	InterruptRestore: interruptRestore,
	InterruptWait:    interruptWait,
}
