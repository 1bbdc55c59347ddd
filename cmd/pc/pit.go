package main

// PIT (8253/8254) channel 0, programmed as a 100 Hz periodic tick
// source. Grounded on
// original_source/Kernel/arch/x86_common/interrupt/pit.rs: the same
// square-wave/rate-generator command byte and counter-divisor
// computation, and the same IRQ0 line the PIT fires on.
const (
	pitCounter0 = 0x40
	pitControl  = 0x43

	pitClockHz = 1193182
	pitFreqHz  = 100

	pitCommandCounter0    = 0x00
	pitCommandAccessData  = 0x30
	pitCommandSquareWave  = 0x06

	pitIRQLine = 0
)

func initPIT() {
	const counter = uint16(pitClockHz / pitFreqHz)
	const command = pitCommandCounter0 | pitCommandAccessData | pitCommandSquareWave

	outb(pitControl, command)
	outb(pitCounter0, byte(counter&0xFF))
	outb(pitCounter0, byte(counter>>8))
}
